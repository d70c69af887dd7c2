package app

import (
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// NewValidator returns a validator with the gateway's custom tags registered:
// "smsphone" accepts the phone shapes the outbound API takes.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("smsphone", func(fl validator.FieldLevel) bool {
		return domain.IsValidPhoneNumber(fl.Field().String())
	})
	return v
}

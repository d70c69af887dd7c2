package domain

// Mode selects how an instance receives messages.
type Mode string

const (
	ModeWebhook Mode = "webhook"
	ModePolling Mode = "polling" // Only supported for ProviderTwilio
)

// InstanceConfig is one configured gateway. It is owned by the configuration layer
// and handed to the pipeline read-only.
type InstanceConfig struct {
	ID       string      `mapstructure:"id" json:"id"`
	Name     string      `mapstructure:"name" json:"name" validate:"required"`
	Provider ProviderTag `mapstructure:"provider" json:"provider" validate:"required,oneof=twilio mobilemessage"`
	Mode     Mode        `mapstructure:"mode" json:"mode" validate:"omitempty,oneof=webhook polling"`

	// Twilio credentials, also used to verify X-Twilio-Signature.
	AccountSID string `mapstructure:"account_sid" json:"-" validate:"required_if=Provider twilio"`
	AuthToken  string `mapstructure:"auth_token" json:"-" validate:"required_if=Provider twilio"`

	// Mobile Message credentials used for outbound sends.
	APIUsername string `mapstructure:"api_username" json:"-"`
	APIPassword string `mapstructure:"api_password" json:"-"`

	WebhookID           string `mapstructure:"webhook_id" json:"webhook_id"`
	WebhookSecret       string `mapstructure:"webhook_secret" json:"-"`
	VerifySignature     bool   `mapstructure:"verify_signature" json:"verify_signature"`
	ValidateCredentials bool   `mapstructure:"validate_credentials" json:"validate_credentials"`

	// Empty whitelist allows every sender; empty blacklist blocks none.
	SenderWhitelist []string `mapstructure:"sender_whitelist" json:"sender_whitelist"`
	SenderBlacklist []string `mapstructure:"sender_blacklist" json:"sender_blacklist"`
	// Keywords are literal substrings or "regex:"-prefixed patterns.
	Keywords      []string `mapstructure:"keywords" json:"keywords"`
	DefaultSender string   `mapstructure:"default_sender" json:"default_sender"`
}

// EffectiveMode returns the configured mode, defaulting to webhook delivery.
func (c InstanceConfig) EffectiveMode() Mode {
	if c.Mode == "" {
		return ModeWebhook
	}
	return c.Mode
}

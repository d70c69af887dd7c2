package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
)

// ErrConfiguration wraps every loading or validation failure.
var ErrConfiguration = errors.New("configuration error")

// Config holds all configuration for the gateway.
type Config struct {
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json text"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Poll     PollConfig     `mapstructure:"poll"`
	Store    StoreConfig    `mapstructure:"store"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Provider ProviderConfig `mapstructure:"provider"`
	Setup    SetupConfig    `mapstructure:"setup"`

	// Instances are validated one by one at setup so a broken entry does not
	// keep the others from starting.
	Instances []domain.InstanceConfig `mapstructure:"instances"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
	// PublicBaseURL is the externally reachable origin, used for webhook URLs and
	// Twilio signature checks. Empty means reconstruct from the request.
	PublicBaseURL string `mapstructure:"public_base_url" validate:"omitempty,url"`

	// The instance API accepts "ApiKey <APIToken>" or "Bearer <jwt>" signed
	// with JWTSecret. With neither set every API request is refused.
	APIToken       string        `mapstructure:"api_token"`
	JWTSecret      string        `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	JWTTokenExpiry time.Duration `mapstructure:"jwt_token_expiry" validate:"min=1m"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"` // Empty keeps events in-process
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"min=1s"`
	Lookback time.Duration `mapstructure:"lookback" validate:"min=1m"`
}

type StoreConfig struct {
	Retention  time.Duration `mapstructure:"retention" validate:"min=1m"`
	HistoryCap int           `mapstructure:"history_cap" validate:"min=1"`
}

type WebhookConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" validate:"min=1"`
}

type ProviderConfig struct {
	Timeout              time.Duration `mapstructure:"timeout" validate:"min=1s"`
	TwilioBaseURL        string        `mapstructure:"twilio_base_url" validate:"url"`
	MobileMessageBaseURL string        `mapstructure:"mobilemessage_base_url" validate:"url"`
}

type SetupConfig struct {
	RetryAttempts uint          `mapstructure:"retry_attempts" validate:"min=1"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// RetryEvery is how often instances that failed setup are attempted again.
	RetryEvery time.Duration `mapstructure:"retry_every" validate:"min=1s"`
}

const (
	DefaultPollInterval    = 60 * time.Second
	DefaultPollLookback    = 24 * time.Hour
	DefaultRetention       = 180 * 24 * time.Hour
	DefaultHistoryCap      = 1000
	DefaultMaxBodyBytes    = 10 * 1024
	DefaultProviderTimeout = 30 * time.Second
	DefaultJWTTokenExpiry  = 24 * time.Hour
)

// Load reads configuration from path (or config.yaml in the standard locations when
// path is empty), then applies APP_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("APP") // APP_LOG_LEVEL, APP_HTTP_PORT, APP_NATS_URL etc.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %v", ErrConfiguration, err)
		}
		slog.Info("Configuration file not found; using defaults and environment variables.")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("http.port", 8123)
	v.SetDefault("http.public_base_url", "")
	v.SetDefault("http.api_token", "")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.jwt_token_expiry", DefaultJWTTokenExpiry)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "smsbridge.events")

	v.SetDefault("poll.interval", DefaultPollInterval)
	v.SetDefault("poll.lookback", DefaultPollLookback)

	v.SetDefault("store.retention", DefaultRetention)
	v.SetDefault("store.history_cap", DefaultHistoryCap)

	v.SetDefault("webhook.max_body_bytes", DefaultMaxBodyBytes)

	v.SetDefault("provider.timeout", DefaultProviderTimeout)
	v.SetDefault("provider.twilio_base_url", "https://api.twilio.com")
	v.SetDefault("provider.mobilemessage_base_url", "https://api.mobilemessage.com.au")

	v.SetDefault("setup.retry_attempts", 5)
	v.SetDefault("setup.retry_delay", time.Second)
	v.SetDefault("setup.retry_every", time.Minute)
}

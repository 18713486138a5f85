package config

import (
	"fmt"
	"os"
	"reflect"

	"github.com/spf13/viper"

	"github.com/ardelia/frontdesk/pkg/backoffice"
	"github.com/ardelia/frontdesk/pkg/configutil"
	"github.com/ardelia/frontdesk/pkg/realtime"
	"github.com/ardelia/frontdesk/pkg/telephony"
)

// Config is the full process configuration. The realtime section carries a
// free-form settings map so provider options stay out of the typed tree; it
// is decoded separately in Realtime.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`

	Telephony  telephony.Config `mapstructure:"telephony"`
	AI         AIConfig         `mapstructure:"realtime"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Backoffice BackofficeConfig `mapstructure:"backoffice"`
	Privacy    PrivacyConfig    `mapstructure:"privacy"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

type AIConfig struct {
	Settings map[string]any `mapstructure:"settings"`
}

type AgentConfig struct {
	Prompt          string `mapstructure:"prompt"`
	Voice           string `mapstructure:"voice"`
	Greeting        string `mapstructure:"greeting"`
	BookingEnabled  bool   `mapstructure:"booking_enabled"`
	AssistantNumber string `mapstructure:"assistant_number"`
	SMSLimit        int    `mapstructure:"sms_limit"`
}

type BackofficeConfig struct {
	Booking backoffice.BookingConfig `mapstructure:"booking"`
	SMS     backoffice.SMSConfig     `mapstructure:"sms"`
	Stats   backoffice.StatsConfig   `mapstructure:"stats"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("telephony.server_addr", ":8080")
	v.SetDefault("telephony.voice_path", "/voice")
	v.SetDefault("telephony.stream_path", "/calls")
	v.SetDefault("agent.voice", "alloy")
	v.SetDefault("agent.sms_limit", 2)
	v.SetDefault("backoffice.booking.timeout_ms", 8000)
	v.SetDefault("backoffice.stats.buffer", 256)
	v.SetDefault("backoffice.stats.timeout_ms", 3000)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Realtime decodes the realtime settings map into the typed client config.
func (c *Config) Realtime() (realtime.Config, error) {
	var out realtime.Config
	if err := configutil.DecodeSettings(c.AI.Settings, &out); err != nil {
		return realtime.Config{}, fmt.Errorf("realtime settings: %w", err)
	}
	return out, nil
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Agent.Prompt, "agent.prompt"); err != nil {
		return err
	}
	rt, err := c.Realtime()
	if err != nil {
		return err
	}
	if err := configutil.RequireString(rt.APIKey, "realtime.settings.api_key"); err != nil {
		return err
	}
	if c.Agent.BookingEnabled {
		if err := configutil.RequireString(c.Backoffice.Booking.URL, "backoffice.booking.url"); err != nil {
			return err
		}
		if err := configutil.RequireString(c.Backoffice.SMS.FromNumber, "backoffice.sms.from_number"); err != nil {
			return err
		}
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.AI.Settings = expandSettings(cfg.AI.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	}
}

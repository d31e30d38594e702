// Package config loads server and client settings from .env, an optional
// config.yaml and ELOWY_* environment variables, in that order of precedence
// (later wins).
package config

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var ErrConfiguration = errors.New("configuration error")

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret" validate:"required,min=8"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"required"`
	// AuthTimeout bounds how long a fresh websocket may stay silent before
	// sending its authenticate frame.
	AuthTimeout time.Duration `mapstructure:"auth_timeout" validate:"required"`
}

type AIConfig struct {
	ResponderID   int           `mapstructure:"responder_id" validate:"required,gt=0"`
	MentionPrefix string        `mapstructure:"mention_prefix" validate:"required"`
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	Model         string        `mapstructure:"model" validate:"required"`
	Instruction   string        `mapstructure:"instruction"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"required"`
}

// Enabled reports whether an AI backend is configured.
func (c AIConfig) Enabled() bool {
	return c.APIKey != ""
}

type ServerConfig struct {
	Addr     string         `mapstructure:"addr" validate:"required"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	AI       AIConfig       `mapstructure:"ai"`
}

type ClientConfig struct {
	ServerURL     string        `mapstructure:"server_url" validate:"required,url"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	AIResponderID int           `mapstructure:"ai_responder_id" validate:"required,gt=0"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"required"`
	Log           LogConfig     `mapstructure:"log"`
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.auth_timeout", 10*time.Second)
	v.SetDefault("ai.responder_id", 3)
	v.SetDefault("ai.mention_prefix", "@ai")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.instruction", "You are a helpful assistant taking part in a chat. Answer briefly.")
	v.SetDefault("ai.timeout", 30*time.Second)
}

func setClientDefaults(v *viper.Viper) {
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("ai_responder_id", 3)
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// LoadServer reads the server configuration. configFile may be empty.
func LoadServer(configFile string) (*ServerConfig, error) {
	v, err := newViper(configFile, setServerDefaults)
	if err != nil {
		return nil, err
	}
	cfg := &ServerConfig{}
	if err := decode(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClient reads the client configuration. configFile may be empty.
func LoadClient(configFile string) (*ClientConfig, error) {
	v, err := newViper(configFile, setClientDefaults)
	if err != nil {
		return nil, err
	}
	cfg := &ClientConfig{}
	if err := decode(v, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper(configFile string, defaults func(*viper.Viper)) (*viper.Viper, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("ELOWY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrapf(ErrConfiguration, "read config: %v", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper, out interface{}) error {
	if err := v.Unmarshal(out); err != nil {
		return errors.Wrapf(ErrConfiguration, "parse config: %v", err)
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrapf(ErrConfiguration, "invalid config: %v", err)
	}
	return nil
}

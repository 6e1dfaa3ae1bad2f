package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "LEADCOPY"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "leadcopy.db"
	defaultLogLevel       = "info"
	defaultAuthIssuer     = "leadcopy-auth"
	defaultAuthAudience   = "leadcopy-api"
	defaultCRMTimeoutSecs = 10
	defaultCRMMaxRetries  = 2
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	SigningSecret string
	AuthIssuer    string
	AuthAudience  string
	DatabasePath  string
	LogLevel      string
	CRMTimeout    time.Duration
	CRMMaxRetries uint64
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper
// instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("crm.timeout_seconds", defaultCRMTimeoutSecs)
	configViper.SetDefault("crm.max_retries", defaultCRMMaxRetries)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:    configViper.GetString("auth.issuer"),
		AuthAudience:  configViper.GetString("auth.audience"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		CRMTimeout:    time.Duration(configViper.GetInt("crm.timeout_seconds")) * time.Second,
		CRMMaxRetries: configViper.GetUint64("crm.max_retries"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.CRMTimeout <= 0 {
		return fmt.Errorf("crm.timeout_seconds must be positive")
	}
	return nil
}

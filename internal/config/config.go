package config

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/notebooks/internal/logging"
	"github.com/spf13/viper"
)

const (
	envPrefix            = "NOTEBOOKS"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "notebooks.db"
	defaultLogLevel      = "info"
	defaultCookieName    = "notebooks_session"
	defaultSessionIssuer = "notebooks-auth"
	defaultSiteBaseURL   = "http://localhost:8080"
	defaultPageSize      = 15
	maxPageSize          = 100
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress          string
	DatabasePath         string
	LogLevel             string
	SessionSigningSecret string
	SessionIssuer        string
	SessionCookieName    string
	ListingPageSize      int
	CORSAllowedOrigins   []string
	SiteBaseURL          string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.issuer", defaultSessionIssuer)
	configViper.SetDefault("session.cookie_name", defaultCookieName)
	configViper.SetDefault("listing.page_size", defaultPageSize)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("site.base_url", defaultSiteBaseURL)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		DatabasePath:         configViper.GetString("database.path"),
		LogLevel:             configViper.GetString("log.level"),
		SessionSigningSecret: configViper.GetString("session.signing_secret"),
		SessionIssuer:        configViper.GetString("session.issuer"),
		SessionCookieName:    configViper.GetString("session.cookie_name"),
		ListingPageSize:      configViper.GetInt("listing.page_size"),
		CORSAllowedOrigins:   splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		SiteBaseURL:          strings.TrimRight(strings.TrimSpace(configViper.GetString("site.base_url")), "/"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("session.issuer is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.SiteBaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.ListingPageSize < 1 || c.ListingPageSize > maxPageSize {
		return fmt.Errorf("listing.page_size must be between 1 and %d", maxPageSize)
	}
	return nil
}

// splitOrigins accepts both list values and the comma separated form used in env vars.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config represents the application configuration.
type Config struct {
	App         ApplicationConfig `yaml:"app"`
	SQLite      SQLiteConfig      `yaml:"sqlite"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Auth        AuthConfig        `yaml:"auth"`
	Sync        SyncConfig        `yaml:"sync"`
	MCP         MCPConfig         `yaml:"mcp"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds the path of the database that stores documents,
// accounts and sessions.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AttachmentsConfig holds the root directory for project files. An empty
// path disables attachments.
type AttachmentsConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether attachments are configured.
func (c *AttachmentsConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds session and federated sign-in configuration.
type AuthConfig struct {
	SessionTTL time.Duration   `yaml:"session_ttl"`
	Federated  FederatedConfig `yaml:"federated"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.SessionTTL, validation.Min(time.Minute)),
	); err != nil {
		return err
	}
	return c.Federated.Validate()
}

// FederatedConfig describes an OAuth2 identity provider. When Enabled is
// false the remaining fields are ignored.
type FederatedConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Provider     string   `yaml:"provider"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	Scopes       []string `yaml:"scopes"`
}

// Validate validates the federated configuration.
func (c *FederatedConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required),
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.Required),
		validation.Field(&c.RedirectURL, validation.Required, is.URL),
		validation.Field(&c.AuthURL, validation.Required, is.URL),
		validation.Field(&c.TokenURL, validation.Required, is.URL),
		validation.Field(&c.UserInfoURL, validation.Required, is.URL),
	); err != nil {
		return fmt.Errorf("auth.federated: %w", err)
	}
	return nil
}

// SyncConfig controls live-update sources.
type SyncConfig struct {
	// WatchExternal also notifies subscribers of writes made by other
	// processes sharing the database file.
	WatchExternal bool `yaml:"watch_external"`
}

// MCPConfig holds the credentials the stdio MCP server signs in with.
type MCPConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Validate validates the MCP configuration. It is only checked when the
// MCP server starts.
func (c *MCPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./monteerly.db",
		},
		Attachments: AttachmentsConfig{
			Path: "./attachments",
		},
		Auth: AuthConfig{
			SessionTTL: 30 * 24 * time.Hour,
		},
	}
}

/*
Package configs is responsible for loading and parsing the application's configuration settings.

It configures server parameters by reading operating system environment variables,
including the running environment, port, CORS allowed origins, and the identity
provider settings used to verify bearer tokens.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Google's published signing keys and accepted issuer strings. These are the
// defaults because the reference deployment authenticates with Google id tokens.
const (
	DefaultJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

	defaultIssuers = "https://accounts.google.com,accounts.google.com"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	Port        int

	// Security Settings
	AllowedOrigins []string

	// Identity Provider Settings
	JWKSURL  string
	Issuers  []string
	Audience string

	// AllowedEmails restricts room access to the listed identities.
	// Empty means every verified identity is authorized.
	AllowedEmails []string
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type
// conversions and validation. It returns a pointer to the AppConfig struct and any
// error encountered.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}

	// --- General Server Settings ---
	// Environment
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Port
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Security Settings ---
	// AllowedOrigins
	cfg.AllowedOrigins = splitCSV(os.Getenv("ALLOWED_ORIGINS"))

	// --- Identity Provider Settings ---
	cfg.JWKSURL = os.Getenv("OIDC_JWKS_URL")
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}

	issuersStr := os.Getenv("OIDC_ISSUERS")
	if issuersStr == "" {
		issuersStr = defaultIssuers
	}
	cfg.Issuers = splitCSV(issuersStr)
	if len(cfg.Issuers) == 0 {
		return nil, fmt.Errorf("OIDC_ISSUERS must name at least one accepted issuer")
	}

	// Audience is optional: when set, tokens minted for another OAuth client
	// are rejected.
	cfg.Audience = os.Getenv("OIDC_AUDIENCE")

	// --- Authorization Settings ---
	cfg.AllowedEmails = splitCSV(os.Getenv("ALLOWED_EMAILS"))

	return cfg, nil
}

// splitCSV parses a comma-separated environment value into a slice,
// trimming whitespace and dropping empty entries.
func splitCSV(value string) []string {
	if value == "" {
		return []string{}
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}

	if out == nil {
		return []string{}
	}
	return out
}

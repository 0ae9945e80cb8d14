// Package config resolves settings with flag > env > default priority.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotenv loads a .env file from the working directory when present.
// A missing file is not an error.
func LoadDotenv() {
	_ = godotenv.Load()
}

// Resolve returns flagValue when set, else the environment variable, else def.
func Resolve(flagValue, envKey, def string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return def
}

// ValidateBaseURL checks that the API base URL is a usable http(s) URL.
func ValidateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("base URL cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}

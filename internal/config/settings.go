// Package config handles the daemon's environment-derived settings and its
// optional startup manifest.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Settings is the auth and transport configuration read from the process
// environment at startup.
type Settings struct {
	Addr        string
	JWTAlgo     string
	JWTVerifKey string
	APIKey      string
}

// LoadSettings reads Settings from the environment, applying defaults and
// validating the JWT configuration.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		Addr:        envOr("PROCFLEET_ADDR", ":8080"),
		JWTAlgo:     os.Getenv("JWT_ALGO"),
		JWTVerifKey: os.Getenv("JWT_VERIF_KEY"),
		APIKey:      os.Getenv("API_KEY"),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces that a configured JWT algorithm always has a
// verification key to go with it.
func (s *Settings) Validate() error {
	if s.JWTAlgo != "" && strings.TrimSpace(s.JWTVerifKey) == "" {
		return fmt.Errorf("config: JWT_VERIF_KEY cannot be empty when JWT_ALGO is set")
	}
	return nil
}

// AuthEnabled reports whether any auth mechanism is configured.
func (s *Settings) AuthEnabled() bool {
	return s.JWTAlgo != "" || s.APIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Package auth implements the bearer-JWT and API-key checks applied to
// every request, mirroring the auth dependency the original service ran in
// front of its entire router.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ryym/procfleet/internal/apierr"
	"github.com/ryym/procfleet/internal/config"
)

// Checker validates the credentials carried by a request against the
// configured settings.
type Checker struct {
	settings *config.Settings
}

// New builds a Checker from settings.
func New(settings *config.Settings) *Checker {
	return &Checker{settings: settings}
}

// CheckHeader enforces auth using standard HTTP header conventions:
// "Authorization: Bearer <jwt>" and "X-API-Key: <key>".
func (c *Checker) CheckHeader(r *http.Request) error {
	return c.check(bearerToken(r.Header.Get("Authorization")), r.Header.Get("X-API-Key"))
}

// CheckQuery enforces auth using the query-parameter form accepted for
// WebSocket upgrades, which cannot carry custom headers from a browser.
func (c *Checker) CheckQuery(r *http.Request) error {
	q := r.URL.Query()
	return c.check(q.Get("jwt_token"), q.Get("api_key"))
}

// CheckHeaderOrQuery accepts credentials from either the standard headers or
// the WebSocket query-parameter form, preferring the header when both are
// present. Used by the tail-stream upgrade, which is reached by both
// command-line clients (headers) and browsers (query params only).
func (c *Checker) CheckHeaderOrQuery(r *http.Request) error {
	q := r.URL.Query()

	jwtToken := bearerToken(r.Header.Get("Authorization"))
	if jwtToken == "" {
		jwtToken = q.Get("jwt_token")
	}
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		apiKey = q.Get("api_key")
	}
	return c.check(jwtToken, apiKey)
}

// check applies both configured mechanisms; either may be absent from
// settings, in which case it is skipped.
func (c *Checker) check(jwtToken, apiKey string) error {
	if c.settings.JWTAlgo != "" {
		if jwtToken == "" {
			return apierr.New(apierr.AuthMissing, "JWT required")
		}
		if !c.validJWT(jwtToken) {
			return apierr.New(apierr.AuthInvalid, "invalid JWT")
		}
	}

	if c.settings.APIKey != "" {
		if apiKey == "" {
			return apierr.New(apierr.AuthMissing, "API key required")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(c.settings.APIKey)) != 1 {
			return apierr.New(apierr.AuthInvalid, "invalid API key")
		}
	}

	return nil
}

func (c *Checker) validJWT(token string) bool {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{c.settings.JWTAlgo}))
	_, err := parser.Parse(token, func(*jwt.Token) (any, error) {
		return []byte(c.settings.JWTVerifKey), nil
	})
	return err == nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

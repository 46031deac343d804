package auth

import (
	"net/http"

	"github.com/ryym/procfleet/internal/apierr"
)

// Middleware enforces CheckHeader on every request, writing the mapped
// status code and stopping the chain on failure.
func (c *Checker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := c.CheckHeader(r); err != nil {
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusForbidden
	detail := err.Error()
	if apiErr, ok := apierr.As(err); ok {
		detail = apiErr.Detail
		if apiErr.Code == apierr.AuthMissing {
			status = http.StatusUnauthorized
		}
	}
	http.Error(w, detail, status)
}

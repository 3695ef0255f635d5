package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS returns a middleware that admits the given origins. "*" admits any
// origin; the request origin is echoed back so credentials stay allowed.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowOriginFunc:  allowOrigin(allowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           600,
	})
}

// OriginChecker reports whether a WebSocket handshake origin is admitted by
// the same rules as CORS.
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := allowOrigin(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed(r, origin)
	}
}

func allowOrigin(allowedOrigins []string) func(r *http.Request, origin string) bool {
	return func(_ *http.Request, origin string) bool {
		for _, allowed := range allowedOrigins {
			if allowed == "*" || strings.EqualFold(allowed, origin) {
				return true
			}
		}
		return false
	}
}

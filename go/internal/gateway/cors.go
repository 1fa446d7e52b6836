package gateway

import (
	"net/http"

	"github.com/rs/cors"
)

// WithCORS wraps handler with the CORS policy for browser clients
func WithCORS(handler http.Handler, allowedOrigins []string) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})
	return c.Handler(handler)
}

package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a configured CORS middleware. Browser clients read the
// event stream directly, so the correlation header is exposed.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", CorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// Package restapi serves the CSV and database engines over HTTP.
package restapi

import (
	"net/http"
	"time"

	"dbconnect.dev/internal/app"
	"dbconnect.dev/internal/logging"
)

type RestAPI struct {
	*app.Application
	rateLimiter *RateLimitMiddleware
}

// NewRestAPI creates a new RestAPI instance with initialized rate limiter
func NewRestAPI(app *app.Application) *RestAPI {
	if app.Logger == nil {
		app.Logger = logging.NewDiscardLogger()
	}
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second),
	}
}

// Handler returns the routes wrapped in the middleware chain. Requests pass through security
// headers, request logging, compression and rate limiting, in that order.
func (api *RestAPI) Handler() http.Handler {
	var handler http.Handler = api.Routes()
	handler = api.rateLimiter.Handler(handler)
	handler = CompressionMiddleware(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	return api.WithSecurityHeaders(handler)
}

// Close stops background work owned by the API
func (api *RestAPI) Close() {
	api.rateLimiter.Stop()
}

package restapi

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type handlerFunc func(w http.ResponseWriter, r *http.Request)

func validateAPIKey(api *RestAPI, finalHandler handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		finalHandler(w, r)
	})
}

// Routes registers every endpoint. The metrics endpoint is not behind the API key check.
func (api *RestAPI) Routes() *httprouter.Router {
	router := httprouter.New()

	router.Handler(http.MethodGet, "/api/queries.json", validateAPIKey(api, api.queriesHandler))
	router.Handler(http.MethodGet, "/api/query/:name", validateAPIKey(api, api.queryHandler))
	router.Handler(http.MethodGet, "/api/csv.json", validateAPIKey(api, api.csvHandler))
	router.Handler(http.MethodDelete, "/api/cache", validateAPIKey(api, api.clearCacheHandler))
	router.Handler(http.MethodGet, "/api/current-time.json", validateAPIKey(api, api.currentTimeHandler))
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	router.NotFound = http.HandlerFunc(api.sendNotFound)
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.sendError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return router
}

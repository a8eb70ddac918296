package restapi

import (
	"log/slog"
	"net/http"

	"dbconnect.dev/internal/logging"
	"dbconnect.dev/internal/models"
)

// clearCacheHandler drops the cached frames of every configured engine
func (api *RestAPI) clearCacheHandler(w http.ResponseWriter, r *http.Request) {
	cleared := []string{}

	if api.CSVEngine != nil {
		api.CSVEngine.ClearCache()
		cleared = append(cleared, models.SourceCSV)
	}

	if api.DBEngine != nil {
		if err := api.DBEngine.ClearCache(); err != nil {
			api.serverErrorResponse(w, r, err)
			return
		}
		cleared = append(cleared, "database")
	}

	logging.LogOperation(logging.FromContext(r.Context()), "cache_cleared",
		slog.Any("engines", cleared))

	api.sendResponse(w, r, models.NewEntryResponse(models.CacheClearedModel{Cleared: cleared}))
}

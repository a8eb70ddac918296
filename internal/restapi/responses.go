package restapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"dbconnect.dev/internal/logging"
	"dbconnect.dev/internal/models"
)

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, response models.ResponseModel) {
	setJSONResponseType(w)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logging.LogError(api.Logger, "failed to encode response", err, slogPath(r))
	}
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func slogPath(r *http.Request) slog.Attr {
	return slog.String("path", r.URL.Path)
}

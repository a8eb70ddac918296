package restapi

import (
	"net/http"

	"dbconnect.dev/internal/models"
	"dbconnect.dev/internal/utils"
)

func (api *RestAPI) csvHandler(w http.ResponseWriter, r *http.Request) {
	limit, fieldErrors := utils.ParseLimitParam(r.URL.Query(), "limit", nil)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	if api.CSVEngine == nil {
		api.sendServiceUnavailable(w, r, "csv engine not configured")
		return
	}

	df, err := api.CSVEngine.DataFrame(r.Context())
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	entry := models.NewFrameEntry(models.SourceCSV, "", df, limit)
	api.sendResponse(w, r, models.NewEntryResponse(entry))
}

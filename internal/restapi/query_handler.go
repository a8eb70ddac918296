package restapi

import (
	"errors"
	"net/http"

	"dbconnect.dev/dbengine"
	"dbconnect.dev/internal/models"
	"dbconnect.dev/internal/utils"
)

// queryHandler runs a query file through the cached QueryFile path
func (api *RestAPI) queryHandler(w http.ResponseWriter, r *http.Request) {
	name := utils.ExtractNameFromParams(r, "name")

	if err := utils.ValidateQueryName(name); err != nil {
		api.validationErrorResponse(w, r, map[string][]string{
			"name": {err.Error()},
		})
		return
	}

	limit, fieldErrors := utils.ParseLimitParam(r.URL.Query(), "limit", nil)
	if len(fieldErrors) > 0 {
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	if api.DBEngine == nil {
		api.sendServiceUnavailable(w, r, "database engine not configured")
		return
	}

	df, err := api.DBEngine.QueryFile(r.Context(), name)
	switch {
	case errors.Is(err, dbengine.ErrQueryNotFound):
		api.sendNotFound(w, r)
		return
	case errors.Is(err, dbengine.ErrInvalidQueryName):
		api.validationErrorResponse(w, r, map[string][]string{
			"name": {err.Error()},
		})
		return
	case errors.Is(err, dbengine.ErrQueryTimeout):
		api.sendError(w, http.StatusGatewayTimeout, err.Error())
		return
	case err != nil:
		api.serverErrorResponse(w, r, err)
		return
	}

	entry := models.NewFrameEntry(models.SourceQuery, name, df, limit)
	api.sendResponse(w, r, models.NewEntryResponse(entry))
}

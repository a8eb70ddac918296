package restapi

import (
	"net/http"

	"dbconnect.dev/internal/models"
)

func (api *RestAPI) queriesHandler(w http.ResponseWriter, r *http.Request) {
	if api.DBEngine == nil {
		api.sendServiceUnavailable(w, r, "database engine not configured")
		return
	}

	names, err := api.DBEngine.ListQueries()
	if err != nil {
		api.serverErrorResponse(w, r, err)
		return
	}

	api.sendResponse(w, r, models.NewListResponse(names, false))
}

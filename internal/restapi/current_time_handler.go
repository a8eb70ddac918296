package restapi

import (
	"net/http"
	"time"

	"dbconnect.dev/internal/models"
)

func (api *RestAPI) currentTimeHandler(w http.ResponseWriter, r *http.Request) {
	response := models.NewEntryResponse(models.NewCurrentTimeModel(time.Now()))
	api.sendResponse(w, r, response)
}

package utils

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
)

// ExtractNameFromParams retrieves a route parameter from the request context and strips a trailing
// ".json" extension.
func ExtractNameFromParams(r *http.Request, paramName string) string {
	params := httprouter.ParamsFromContext(r.Context())
	raw := params.ByName(paramName)
	return strings.TrimSuffix(raw, ".json")
}

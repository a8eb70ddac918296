package app

import (
	"log/slog"

	"dbconnect.dev/csvengine"
	"dbconnect.dev/dbengine"
	"dbconnect.dev/internal/appconf"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware. Either engine may be nil when its source is not configured.
type Application struct {
	Config    appconf.Config
	Logger    *slog.Logger
	CSVEngine *csvengine.Engine
	DBEngine  *dbengine.Engine
}

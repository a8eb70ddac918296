package restapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"dbconnect.dev/csvengine"
	"dbconnect.dev/dbengine"
	"dbconnect.dev/internal/app"
	"dbconnect.dev/internal/appconf"
	"dbconnect.dev/internal/models"
)

// newTestDBEngine creates a SQLite backed engine with two query files
func newTestDBEngine(t *testing.T) *dbengine.Engine {
	t.Helper()
	root := t.TempDir()

	queries := filepath.Join(root, "queries")
	require.NoError(t, os.Mkdir(queries, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(queries, "prices.sql"),
		[]byte("SELECT symbol, price, volume FROM prices ORDER BY symbol"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(queries, "broken.sql"),
		[]byte("SELECT * FROM missing_table"), 0o644))

	db, err := sql.Open("sqlite", filepath.Join(root, "data.db"))
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE prices (symbol TEXT, price REAL, volume INTEGER);
		INSERT INTO prices VALUES ('NGA', 2.75, 100), ('CLA', 81.1, NULL), ('ZSA', 1.5, 7);
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	engine, err := dbengine.New(dbengine.WithSettings(dbengine.Settings{
		Driver:      dbengine.DriverSQLite,
		Name:        "data.db",
		QueryFolder: "queries",
	}, root))
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	return engine
}

func newTestCSVEngine(t *testing.T) *csvengine.Engine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trades.csv"),
		[]byte("symbol,qty\nNGA,1\nCLA,2\nZSA,3\n"), 0o644))
	return csvengine.NewEngine(dir)
}

// createTestApi creates a RestAPI with both engines configured
func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	application := &app.Application{
		Config: appconf.Config{
			Env:       appconf.EnvFlagToEnvironment("test"),
			ApiKeys:   []string{"TEST", "test"},
			RateLimit: 100,
		},
		CSVEngine: newTestCSVEngine(t),
		DBEngine:  newTestDBEngine(t),
	}

	api := NewRestAPI(application)
	t.Cleanup(api.Close)
	return api
}

// serveAndRetrieveEndpoint sets up a test server, makes a request to the specified endpoint, and
// returns the response and decoded model.
func serveAndRetrieveEndpoint(t *testing.T, api *RestAPI, method, endpoint string) (*http.Response, models.ResponseModel) {
	t.Helper()
	server := httptest.NewServer(api.Handler())
	defer server.Close()

	req, err := http.NewRequest(method, server.URL+endpoint, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	var response models.ResponseModel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))

	return resp, response
}

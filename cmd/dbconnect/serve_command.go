package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dbconnect.dev/csvengine"
	"dbconnect.dev/dbengine"
	"dbconnect.dev/internal/app"
	"dbconnect.dev/internal/appconf"
	"dbconnect.dev/internal/logging"
	"dbconnect.dev/internal/restapi"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	port      int
	env       string
	apiKeys   string
	rateLimit int
	csvDir    string
	watch     bool
}

func newServeCmd(c *cli) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the engines over HTTP",
		Long: `Serve query files and the CSV directory over an HTTP API guarded by API keys.

The database engine is optional: when no db.env can be found the query endpoints answer 503.
The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.port, "port", 4000, "API server port")
	flags.StringVar(&opts.env, "env", "development", "Environment (development|test|production)")
	flags.StringVar(&opts.apiKeys, "api-keys", "test", "Comma separated API keys")
	flags.IntVar(&opts.rateLimit, "rate-limit", 100, "Requests per second per API key")
	flags.StringVar(&opts.csvDir, "csv-dir", "", "Directory of CSV files served at /api/csv.json")
	flags.BoolVar(&opts.watch, "watch", false, "Clear the CSV cache when files in --csv-dir change")

	return cmd
}

func (c *cli) buildApplication(opts serveOptions) (*app.Application, error) {
	cfg := appconf.Config{
		Env:       appconf.EnvFlagToEnvironment(opts.env),
		Port:      opts.port,
		ApiKeys:   appconf.ParseApiKeys(opts.apiKeys),
		RateLimit: opts.rateLimit,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}

	application := &app.Application{
		Config: cfg,
		Logger: c.logger,
	}

	if opts.csvDir != "" {
		application.CSVEngine = csvengine.NewEngine(opts.csvDir, csvengine.WithLogger(c.logger))
	}

	dbEngine, err := c.newDBEngine()
	switch {
	case errors.Is(err, dbengine.ErrEnvFileNotFound) && c.envFile == "":
		c.logger.Warn("database engine disabled", slog.String("reason", err.Error()))
	case err != nil:
		return nil, err
	default:
		application.DBEngine = dbEngine
	}

	return application, nil
}

func newServer(api *restapi.RestAPI, logger *slog.Logger) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", api.Config.Port),
		Handler:      api.Handler(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: dbengine.DefaultTimeout + 10*time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}

func (c *cli) serve(ctx context.Context, opts serveOptions) error {
	if opts.watch && opts.csvDir == "" {
		return errors.New("--watch requires --csv-dir")
	}

	application, err := c.buildApplication(opts)
	if err != nil {
		return err
	}
	if application.DBEngine != nil {
		defer logging.SafeCloseWithLogging(application.DBEngine, c.logger, "database_engine")
	}

	api := restapi.NewRestAPI(application)
	defer api.Close()

	srv := newServer(api, c.logger)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		c.logger.Info("starting server",
			slog.String("addr", srv.Addr),
			slog.String("env", application.Config.Env.String()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.logger.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})

	if opts.watch {
		group.Go(func() error {
			return application.CSVEngine.Watch(ctx)
		})
	}

	return group.Wait()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keremk/renku-sub000/internal/blueprintclient"
	"github.com/keremk/renku-sub000/internal/execclient"
	"github.com/keremk/renku-sub000/internal/planner"
	repopg "github.com/keremk/renku-sub000/internal/repo/postgres"

	"github.com/keremk/renku-sub000/internal/platform/env"
	"github.com/keremk/renku-sub000/internal/platform/httpserver"
	"github.com/keremk/renku-sub000/internal/platform/postgres"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("CONDUCTOR_HTTP_ADDR", ":8086")
	shutdownTimeout, err := env.Duration("CONDUCTOR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	planTimeout, err := env.Duration("CONDUCTOR_PLAN_TIMEOUT", 30*time.Second)
	if err != nil {
		logger.Error("invalid plan timeout", "error", err)
		os.Exit(2)
	}
	blueprintTimeout, err := env.Duration("CONDUCTOR_BLUEPRINT_TIMEOUT", 15*time.Second)
	if err != nil {
		logger.Error("invalid blueprint timeout", "error", err)
		os.Exit(2)
	}

	blueprintURL := env.String("CONDUCTOR_BLUEPRINT_URL", "http://localhost:8081")
	executorURL := env.String("CONDUCTOR_EXECUTOR_URL", "http://localhost:8082")

	rateTablePath := env.String("CONDUCTOR_RATE_TABLE", "")
	if rateTablePath == "" {
		logger.Error("missing rate table path", "env", "CONDUCTOR_RATE_TABLE")
		os.Exit(2)
	}
	rateTableRaw, err := os.ReadFile(rateTablePath)
	if err != nil {
		logger.Error("read rate table failed", "path", rateTablePath, "error", err)
		os.Exit(2)
	}
	rateTable, err := planner.ParseRateTable(rateTableRaw)
	if err != nil {
		logger.Error("invalid rate table", "path", rateTablePath, "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("conductor"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"conductor",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)

	api := newConductorAPI(
		logger,
		blueprintclient.New(blueprintURL, blueprintTimeout),
		execclient.New(executorURL),
		rateTable.Estimator(),
		repopg.NewArtifactStore(db),
		repopg.NewRunLogStore(db),
		planTimeout,
	)
	api.register(mux)

	startRunLogPruner(ctx, logger, repopg.NewRunLogStore(db))

	cfg := httpserver.Config{
		Service:         "conductor",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "conductor", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/workpool"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
	"github.com/tedsuo/ifrit"
	"github.com/tedsuo/ifrit/grouper"
	"github.com/tedsuo/ifrit/http_server"
	"github.com/tedsuo/ifrit/sigmon"
	"github.com/xtrntr/carauction/internal/api"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auth"
	"github.com/xtrntr/carauction/internal/bidding"
	"github.com/xtrntr/carauction/internal/catalog"
	"github.com/xtrntr/carauction/internal/config"
	"github.com/xtrntr/carauction/internal/db"
	"github.com/xtrntr/carauction/internal/lifecycle"
	"github.com/xtrntr/carauction/internal/logging"
	"github.com/xtrntr/carauction/internal/memstore"
	"github.com/xtrntr/carauction/internal/notify"
	"github.com/xtrntr/carauction/internal/realtime"
	"github.com/xtrntr/carauction/internal/store"
)

// backend is what the engines and the catalog need from persistence
type backend interface {
	store.Store
	store.Catalog
}

func openStore(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *logrus.Logger) (backend, func(), error) {
	if cfg.Store == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return memstore.New(clk), func() {}, nil
	}

	if cfg.AutoMigrate {
		if err := db.MigrateUp(cfg.Conn); err != nil {
			return nil, nil, err
		}
		logger.Info("Database migrations applied")
	}
	database, err := db.NewDB(ctx, cfg.Conn)
	if err != nil {
		return nil, nil, err
	}
	return database, func() { database.Close(ctx) }, nil
}

func allowOrigin(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return origin == ""
	}
}

// Main entry point: sets up storage, engines and the HTTP server
func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("Server exited")
	}
}

// run owns every resource so deferred cleanup happens before the process exits
func run() error {
	ctx := context.Background()

	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	clk := clock.NewClock()

	st, closeStore, err := openStore(ctx, cfg, clk, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	pool, err := workpool.NewWorkPool(cfg.FanoutWorkers)
	if err != nil {
		return fmt.Errorf("create fan-out pool: %w", err)
	}
	defer pool.Stop()

	auditPool, err := workpool.NewWorkPool(cfg.AuditWorkers)
	if err != nil {
		return fmt.Errorf("create audit pool: %w", err)
	}
	defer auditPool.Stop()

	hub := realtime.NewHub(logger, allowOrigin(cfg.CORSOrigins))

	var mailer notify.Mailer
	if cfg.EmailEnabled {
		mailer = notify.LogMailer{Logger: logger}
	}
	notifier := notify.New(st, hub, mailer, pool, logger)
	auditor := audit.NewSink(st, auditPool, logger)
	defer auditor.Wait()

	authService := auth.NewAuthService(st, auditor, cfg.JWTSecret, cfg.TokenTTL, clk, logger)
	engine := bidding.NewEngine(st, notifier, auditor, clk, logger)
	machine := lifecycle.NewMachine(st, notifier, auditor, clk, logger)
	catalogService := catalog.New(st, auditor, clk, logger)

	handler := api.NewHandler(authService, engine, machine, catalogService, hub, cfg.CronSecret, logger)

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: cfg.CORSCredentials(),
		MaxAge:           300,
	}))
	r.Mount("/", handler.Routes())

	members := grouper.Members{
		{Name: "http", Runner: http_server.New(cfg.ServerAddress, r)},
	}
	if cfg.SweepInterval > 0 {
		members = append(members, grouper.Member{
			Name:   "sweeper",
			Runner: lifecycle.NewSweeper(machine, cfg.SweepInterval, clk, logger.WithField("component", "sweeper")),
		})
	}

	logger.WithFields(logrus.Fields{
		"address": cfg.ServerAddress,
		"store":   cfg.Store,
		"sweep":   cfg.SweepInterval.String(),
	}).Info("Starting server")

	process := ifrit.Invoke(sigmon.New(grouper.NewOrdered(os.Interrupt, members)))
	if err := <-process.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/squadsync/squadsync/internal/config"
	"github.com/squadsync/squadsync/internal/feed"
	"github.com/squadsync/squadsync/internal/handlers"
	"github.com/squadsync/squadsync/internal/middleware"
	"github.com/squadsync/squadsync/internal/roster"
	"github.com/squadsync/squadsync/internal/service"
	"github.com/squadsync/squadsync/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Standalone mode (no DATABASE_URL) runs entirely in memory with an
	// in-process feed; useful for local development against the UI.
	var (
		recordStore store.RecordStore
		changeFeed  feed.ChangeFeed
	)
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres: %v", err)
		}
		defer pg.Close()
		recordStore = pg

		rf, err := feed.NewRedisFeed(cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			logger.Fatalf("redis feed: %v", err)
		}
		changeFeed = rf
	} else {
		logger.Warn("DATABASE_URL not set, running with in-memory store and feed")
		recordStore = store.NewMemory()
		changeFeed = feed.NewFake()
	}

	svc := service.New(recordStore, changeFeed, logger, roster.RetryPolicy{
		AckTimeout: cfg.WriteAckTimeout,
		MaxElapsed: cfg.WriteMaxElapsed,
	})
	defer svc.Shutdown()

	api := handlers.NewAPIServer(svc, logger)
	logged := middleware.LogMiddleware(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", api.HealthHandler)
	mux.Handle("/sessions/ws/", logged(http.HandlerFunc(api.RosterWSHandler)))
	mux.Handle("/sessions/", logged(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case (r.Method == http.MethodPost || r.Method == http.MethodDelete) && hasSuffix(r, "/rsvp"):
			api.RSVPHandler(w, r)
		case r.Method == http.MethodPost && hasSuffix(r, "/outcomes"):
			api.OutcomesHandler(w, r)
		case hasSuffix(r, "/roster"):
			api.RosterHandler(w, r)
		case hasSuffix(r, "/risk"):
			api.RiskHandler(w, r)
		case hasSuffix(r, "/complete"):
			api.CompleteHandler(w, r)
		default:
			http.NotFound(w, r)
		}
	})))
	mux.Handle("/squads/", logged(http.HandlerFunc(api.LeadersHandler)))

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Infof("Running on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server exited: %v", err)
	}
}

func hasSuffix(r *http.Request, suffix string) bool {
	return strings.HasSuffix(r.URL.Path, suffix)
}

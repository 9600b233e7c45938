package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"

	"ticketaps/core"
)

func main() {
	cfg := core.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	if cfg.MigrateOnStart {
		if err := core.Migrate(ctx, cfg.DatabaseURL); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
	}

	db, err := core.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	attachments, err := core.NewAttachmentStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open attachment store (%s): %v", cfg.AttachmentBackend, err)
	}

	// Gorilla cookie store for session management.
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))

	if err := core.BootstrapAdmin(ctx, core.NewPgStaffUserRepository(db), cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	deps := core.NewPgRouterDeps(cfg, db, redisClient, attachments)
	router := core.NewRouter(cfg, store, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("starting api server on %s (attachments=%s)", srv.Addr, cfg.AttachmentBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server failed: %v", err)
	}
	log.Printf("api server stopped")
}

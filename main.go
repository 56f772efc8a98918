package main

import (
	"Go_Sentinel/config"
	"Go_Sentinel/internal/app"
	"Go_Sentinel/internal/handler"
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/router"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// main serves the admin API.
func main() {
	config.InitConfig()
	cfg := config.AppConfig
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set to serve the admin api")
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()
	if err := repo.MigrateCatalog(a.DB); err != nil {
		log.Fatalf("migrate catalog: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.InitRouter(handler.New(a.Service, a.Catalog)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infof("admin api listening on %s", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("admin api stopped: %v", err)
	}
}

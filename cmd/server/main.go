package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/micmove/micmove/internal/adapters/http"
	wsignal "github.com/micmove/micmove/internal/adapters/signal"
	"github.com/micmove/micmove/internal/app"
	"github.com/micmove/micmove/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	orch := app.NewOrchestrator()
	ctl := wsignal.NewController(orch, cfg)

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		// Serve TLS when the certificate pair is present, plain HTTP
		// otherwise. Browsers refuse mic access on insecure origins, so
		// the fallback is only useful for local testing.
		var serveErr error
		if fileExists(cfg.CertFile) && fileExists(cfg.KeyFile) {
			log.Info().Str("addr", addr).Msg("Mic Move relay started (https)")
			serveErr = srv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			log.Warn().Str("addr", addr).Str("cert", cfg.CertFile).
				Msg("TLS cert not found, serving plain HTTP")
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Error().Err(serveErr).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"finsight/internal/shared/config"
)

// StartServer creates and starts the HTTP(S) server in the background.
// Fatal listen errors are sent on the returned channel.
func StartServer(handler http.Handler, cfg *config.Config, log zerolog.Logger) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLS.Enabled {
			log.Info().Str("addr", srv.Addr).Msg("HTTPS server starting")
			err = srv.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
		} else {
			log.Info().Str("addr", srv.Addr).Msg("HTTP server starting")
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return srv, errCh
}

// GracefulShutdown stops the server first so no new work is accepted, then
// drains background jobs and closes the store.
func GracefulShutdown(srv *http.Server, deps *Dependencies, timeout time.Duration, log zerolog.Logger) {
	log.Info().Msg("Server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	if err := deps.Shutdown(timeout); err != nil {
		log.Error().Err(err).Msg("Error closing dependencies")
	}

	log.Info().Msg("Server stopped")
}

// Package web serves the JSON API and the public share countdown over HTTP.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hpungsan/keepsake/internal/config"
	"github.com/hpungsan/keepsake/internal/ops"
)

// UserHeader carries the authenticated caller id. Authentication itself
// happens upstream; this service trusts the header.
const UserHeader = "X-Keepsake-User"

// Pinger reports store health for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHandler builds the routed handler with all middleware applied.
func NewHandler(svc *ops.Service, store Pinger, cfg *config.Config, log zerolog.Logger, version string) http.Handler {
	h := &Handlers{
		svc:     svc,
		store:   store,
		cfg:     cfg,
		log:     log,
		version: version,
		public:  newLimiterPool(cfg.PublicRateRPS, cfg.PublicRateBurst),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Handle("/s/{token}", h.rateLimit(http.HandlerFunc(h.HandleShareResolve))).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(requireUser)
	api.HandleFunc("/capsules", h.HandleCreate).Methods(http.MethodPost)
	api.HandleFunc("/capsules", h.HandleList).Methods(http.MethodGet)
	api.HandleFunc("/capsules/{id}", h.HandleFetch).Methods(http.MethodGet)
	api.HandleFunc("/capsules/{id}", h.HandleUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/capsules/{id}", h.HandleWithdraw).Methods(http.MethodDelete)
	api.HandleFunc("/capsules/{id}/open", h.HandleOpen).Methods(http.MethodPost)
	api.HandleFunc("/capsules/{id}/hint", h.HandleHint).Methods(http.MethodGet)
	api.HandleFunc("/capsules/{id}/shares", h.HandleShareCreate).Methods(http.MethodPost)
	api.HandleFunc("/capsules/{id}/shares", h.HandleShareList).Methods(http.MethodGet)
	api.HandleFunc("/shares/{id}", h.HandleShareRevoke).Methods(http.MethodDelete)
	api.HandleFunc("/connections/{other}", h.HandleConnect).Methods(http.MethodPut)
	api.HandleFunc("/connections/{other}", h.HandleDisconnect).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusNotFound, errorBody("NOT_FOUND", "no such route", http.StatusNotFound))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderJSON(w, http.StatusMethodNotAllowed, errorBody("METHOD_NOT_ALLOWED", "method not allowed", http.StatusMethodNotAllowed))
	})

	r.Use(requestID, accessLog(log), recovery(log))
	return securityHeaders(r)
}

// NewServer creates the HTTP server for the configured bind address.
func NewServer(svc *ops.Service, store Pinger, cfg *config.Config, log zerolog.Logger, version string) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           NewHandler(svc, store, cfg, log, version),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves until ctx is canceled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info().Str("addr", srv.Addr).Msg("keepsake http listening")

	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		log.Warn().Msg("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Package app wires the podium server runtime: config, logging, stores,
// metrics, HTTP routes, and the live websocket gateway.
package app

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"podium/cmd/internal/httpapi"
	"podium/cmd/internal/live"
	"podium/cmd/internal/reaction"
	"podium/cmd/internal/session"
	"podium/cmd/security/token"
)

// App owns the wired server runtime and its backend resources.
type App struct {
	cfg Config
	log Logger

	stores  *Stores
	metrics *Metrics

	hub      *live.Hub
	gateway  *live.Gateway
	registry *session.Registry
	ledger   *reaction.Ledger
	api      *httpapi.Handler
}

// New constructs a fully wired App from config and logger. It refuses to
// start without a verification key: a server that cannot verify tokens
// would reject every request anyway.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	pub, err := loadPublicKey(cfg)
	if err != nil {
		return nil, err
	}
	verifier := token.NewVerifier(pub)

	stores, err := NewStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	m := NewMetrics()

	hub := live.NewHub(log,
		live.WithConnectedGauge(m.ConnectedClients),
		live.WithBroadcastCounter(m.Broadcasts),
	)

	registry := session.NewRegistry(log, verifier, stores.Sessions, stores.Hosts, stores.Users, hub)
	ledger := reaction.NewLedger(log, registry.Guard(), stores.Reactions, stores.Users)
	gateway := live.NewGateway(log, hub, registry.Guard())

	api := httpapi.NewHandler(log, registry, ledger, gateway, httpapi.Counters{
		Sessions:  m.SessionsCreated,
		Logins:    m.Logins,
		Reactions: m.Reactions,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		stores:   stores,
		metrics:  m,
		hub:      hub,
		gateway:  gateway,
		registry: registry,
		ledger:   ledger,
		api:      api,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	a.api.Register(r)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := a.stores.Ping(req.Context()); err != nil {
			a.log.Error("ready.fail", "err", err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.HTTPHandler())

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(r, a.log),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.cfg.StoreBackend)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.stores.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

// loadPublicKey reads the RSA verification key from inline PEM or a file.
func loadPublicKey(cfg Config) (*rsa.PublicKey, error) {
	switch {
	case cfg.PublicKeyPEM != "":
		return token.ParsePublicKey([]byte(cfg.PublicKeyPEM))
	case cfg.PublicKeyFile != "":
		data, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("app: read public key %s: %w", cfg.PublicKeyFile, err)
		}
		return token.ParsePublicKey(data)
	default:
		return nil, errors.New("app: no verification key configured, set PODIUM_PUBLIC_KEY or PODIUM_PUBLIC_KEY_FILE")
	}
}

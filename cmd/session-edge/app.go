package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/MrEthical07/goSession/middleware"
)

type appOptions struct {
	ConfigPath  string
	Addr        string
	MetricsAddr string
}

type app struct {
	opts   appOptions
	log    *slog.Logger
	engine *goSession.Engine
	redis  redis.UniversalClient
	db     *sql.DB
}

func newApp(opts appOptions, log *slog.Logger) (*app, error) {
	cfg, err := goSession.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if cfg.Backend.GatewayURL == "" {
		return nil, errors.New("Backend GatewayURL is required")
	}

	a := &app{opts: opts, log: log}
	b := goSession.New().WithConfig(cfg).WithLogger(log)

	if cfg.Redis.Enabled {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.WithRedis(a.redis)
	}

	if cfg.Audit.Enabled && cfg.Audit.DSN != "" {
		sink, db, err := openAuditSink(cfg.Audit.DSN, log)
		if err != nil {
			a.close()
			return nil, err
		}
		a.db = db
		b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine

	report := engine.SecurityReport()
	log.Info("session.security_report",
		"cookie", report.CookieName,
		"secure", report.CookieSecure,
		"same_site", report.CookieSameSite,
		"signing", report.SigningAlgorithm,
		"encrypted", report.EnvelopeEncrypted,
		"distributed_guard", report.DistributedGuard,
		"audit", report.AuditEnabled,
		"profile_sync", report.ProfileSync,
	)
	return a, nil
}

func openAuditSink(dsn string, log *slog.Logger) (*goSession.SQLSink, *sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit database: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping audit database: %w", err)
	}
	sink, err := goSession.NewSQLSink(db, goSession.SQLSinkConfig{Logger: log})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := sink.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return sink, db, nil
}

// Run serves until ctx is done, then shuts both listeners down.
func (a *app) Run(ctx context.Context) error {
	defer a.close()

	gateway, err := url.Parse(a.engine.Config().Backend.GatewayURL)
	if err != nil {
		return fmt.Errorf("parse gateway url: %w", err)
	}

	servers := []*http.Server{{
		Addr:              a.opts.Addr,
		Handler:           withRequestLogging(newRouter(a.engine, gateway), a.log),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
	if a.opts.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              a.opts.MetricsAddr,
			Handler:           prometheus.NewPrometheusExporter(a.engine).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			a.log.Info("server.start", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		a.log.Error("server.fail", "err", err)
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newRouter(engine *goSession.Engine, gateway *url.URL) http.Handler {
	routes := engine.Config().Routes
	proxy := httputil.NewSingleHostReverseProxy(gateway)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !engine.Health(req.Context()).Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if routes.SignOutPath != "" {
		r.Method(http.MethodPost, routes.SignOutPath, middleware.SignOut(engine))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(engine))
		r.Get("/session", sessionInfo)
		r.Handle("/*", middleware.ForwardBearer(engine, proxy))
	})
	return r
}

// sessionInfo reports the current session expiry and the synced profile,
// never the tokens themselves.
func sessionInfo(w http.ResponseWriter, r *http.Request) {
	env, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body := map[string]any{"expires_at": env.Expiry().UTC()}
	if p, ok := goSession.ProfileFromContext(r.Context()); ok {
		body["profile"] = p
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

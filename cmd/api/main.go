package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"laundrydesk.io/internal/audit"
	"laundrydesk.io/internal/auth"
	"laundrydesk.io/internal/bootstrap"
	"laundrydesk.io/internal/config"
	"laundrydesk.io/internal/events"
	"laundrydesk.io/internal/httpapi"
	"laundrydesk.io/internal/obs"
	"laundrydesk.io/internal/permission"
	"laundrydesk.io/internal/store/memory"
	"laundrydesk.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

type store interface {
	auth.RoleStore
	auth.AuditStore
}

func main() {
	if err := run(); err != nil {
		obs.Logger().WithError(err).Fatal("laundrydesk-api stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	commit = obs.InitBuildInfo(version, commit)
	log := obs.Component("api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.OTLPEndpoint, "laundrydesk-api", version)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	checks := map[string]func(context.Context) error{}

	var st store
	if cfg.DatabaseURL != "" {
		pgStore, err := pg.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		st = pgStore
		checks["postgres"] = pgStore.Ping
	} else {
		log.Warn("LAUNDRYDESK_PG_DSN not set; using in-memory role store")
		st = memory.New()
	}

	var bus events.Bus
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		bus = events.NewRedisBus(client, cfg.EventsChannel)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	} else {
		bus = events.NewLocalBus()
	}

	verifier, err := auth.NewTokenVerifier(cfg.AuthSecret, auth.WithIssuer(cfg.AuthIssuer))
	if err != nil {
		return err
	}
	recorder := audit.NewRecorder(st, audit.WithTimeout(cfg.AuditTimeout))
	svc, err := bootstrap.NewService(st,
		bootstrap.WithAuditor(recorder),
		bootstrap.WithAuditLog(st),
		bootstrap.WithPublisher(bus),
		bootstrap.WithTracer(obs.Tracer()),
	)
	if err != nil {
		return err
	}
	sessions := permission.NewRegistry(permission.NewSharedChecker(st), cfg.SessionCacheSize, cfg.SessionTTL)

	api, err := httpapi.New(httpapi.Deps{
		Verifier: verifier,
		Service:  svc,
		Sessions: sessions,
		Ready:    httpapi.ReadyProbe{Checks: checks},
		Version:  version,
	})
	if err != nil {
		return err
	}

	handler := httpapi.MaxBodyBytes(api.Handler(), cfg.MaxBodyBytes)
	if cfg.RateLimitRPS > 0 {
		handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitRPS)
	}
	handler = httpapi.CORS(handler, cfg.CORSOrigins)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessions.Listen(gctx, bus)
	})
	g.Go(func() error {
		log.WithField("addr", srv.Addr).WithField("version", version).WithField("commit", commit).Info("starting laundrydesk-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	recorder.Wait()
	log.Info("stopped")
	return err
}

// Command gateway runs the session and access-gate controller as an HTTP
// service: login/logout against the auth backend, credential persistence,
// doctor verification, and the entry decision endpoint.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"medigate/internal/audit"
	"medigate/internal/credstore"
	"medigate/internal/gate"
	"medigate/internal/platform/config"
	"medigate/internal/platform/httpserver"
	"medigate/internal/platform/logger"
	"medigate/internal/platform/metrics"
	platformredis "medigate/internal/platform/redis"
	"medigate/internal/remote"
	"medigate/internal/session"
	httptransport "medigate/internal/transport/http"
	"medigate/internal/verify"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	kv, closeKV, err := buildKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("credential backend: %w", err)
	}
	defer closeKV()

	storeOpts := []credstore.Option{credstore.WithLogger(log)}
	if cfg.SealKey != "" {
		sealer, err := credstore.NewSealerFromBase64(cfg.SealKey)
		if err != nil {
			return fmt.Errorf("seal key: %w", err)
		}
		storeOpts = append(storeOpts, credstore.WithSealer(sealer))
	}
	store, err := credstore.New(kv, storeOpts...)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	authClient, err := remote.NewAuthClient(cfg.AuthBaseURL,
		remote.WithHTTPClient(httpClient), remote.WithLogger(log))
	if err != nil {
		return err
	}
	profileClient, err := remote.NewProfileClient(cfg.AuthBaseURL,
		remote.WithHTTPClient(httpClient), remote.WithLogger(log))
	if err != nil {
		return err
	}
	directoryClient, err := remote.NewDirectoryClient(cfg.ClinicBaseURL,
		remote.WithHTTPClient(httpClient), remote.WithLogger(log))
	if err != nil {
		return err
	}

	var sinks []audit.Sink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("kafka audit sink: %w", err)
		}
		defer kafkaSink.Close()
		sinks = append(sinks, kafkaSink)
	}
	// Services emit onto the inbox; the worker owns the store/sink writes so
	// produce latency never sits on the login path.
	auditInbox := make(chan audit.Event, 256)
	auditWorker := audit.NewWorker(
		audit.NewPublisher(audit.NewInMemoryStore(), sinks...),
		auditInbox,
		audit.WithWorkerLogger(log),
	)
	auditTrail := audit.NewChannelPublisher(auditInbox)

	sessions, err := session.New(store, authClient, profileClient,
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithAuditPublisher(auditTrail),
	)
	if err != nil {
		return err
	}

	resolverOpts := []verify.Option{verify.WithLogger(log), verify.WithMetrics(m)}
	if cfg.FailClosed {
		resolverOpts = append(resolverOpts, verify.WithFailPolicy(verify.FailClosed))
	}
	resolver := verify.NewResolver(directoryClient, resolverOpts...)

	controller := gate.NewController(sessions, resolver,
		gate.WithLogger(log),
		gate.WithMetrics(m),
		gate.WithAuditPublisher(auditTrail),
	)
	controller.Start(ctx)
	defer controller.Stop()

	// Restore a persisted session before serving, so the first decision read
	// already reflects it.
	sessions.Bootstrap(ctx)

	handler := httptransport.NewHandler(sessions, controller, resolver)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := auditWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("medigate listening", "addr", cfg.Addr, "credstore", cfg.CredStoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("medigate stopped")
	return nil
}

// buildKV selects the credential store backend. The returned close function
// is safe to call even when the backend holds no resources.
func buildKV(ctx context.Context, cfg config.Config) (credstore.KV, func(), error) {
	noop := func() {}
	switch cfg.CredStoreBackend {
	case "memory", "":
		return credstore.NewInMemoryKV(), noop, nil

	case "redis":
		client, err := platformredis.New(cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		if client == nil {
			return nil, noop, errors.New("redis backend selected but MEDIGATE_REDIS_URL is empty")
		}
		return credstore.NewRedisKV(client.Client), func() { _ = client.Close() }, nil

	case "postgres":
		if cfg.Postgres.DSN == "" {
			return nil, noop, errors.New("postgres backend selected but MEDIGATE_POSTGRES_DSN is empty")
		}
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, noop, err
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxConns)
		kv := credstore.NewPostgresKV(db)
		if err := kv.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return kv, func() { _ = db.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown credential backend %q", cfg.CredStoreBackend)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/gatekeeper/pkg/api"
	"github.com/platinummonkey/gatekeeper/pkg/audit"
	"github.com/platinummonkey/gatekeeper/pkg/auth"
	"github.com/platinummonkey/gatekeeper/pkg/config"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/pipeline"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/ratelimit"
	"github.com/platinummonkey/gatekeeper/pkg/routes"
)

var version = "dev"

func main() {
	envFile := flag.String("env-file", "", "dotenv file to load before reading the environment (default: ./.env if present)")
	flag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}

	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout).WithField("version", version)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Gatekeeper exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	codec, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret: []byte(cfg.Token.Secret),
		Issuer: cfg.Token.Issuer,
		TTL:    cfg.Token.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	policies, err := cfg.RateLimit.BuildPolicies()
	if err != nil {
		return err
	}
	policyRegistry, err := ratelimit.NewRegistry(policies...)
	if err != nil {
		return fmt.Errorf("invalid rate limit policies: %w", err)
	}

	store, memStore, redisClient, err := newStore(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(logger), ratelimit.WithMetrics(metrics)}
	if cfg.RateLimit.FailClosed {
		limiterOpts = append(limiterOpts, ratelimit.WithFailClosed())
	}
	limiter := ratelimit.NewLimiter(policyRegistry, store, limiterOpts...)

	trail, err := newAuditTrail(cfg.Audit, logger)
	if err != nil {
		return err
	}

	table := routes.Default()
	if cfg.Routes.File != "" {
		if table, err = routes.Load(cfg.Routes.File); err != nil {
			return err
		}
	}
	compiled, err := table.Compile(policyRegistry)
	if err != nil {
		return fmt.Errorf("invalid route table: %w", err)
	}

	var upstream http.Handler
	if cfg.Server.UpstreamURL != "" {
		target, err := url.Parse(cfg.Server.UpstreamURL)
		if err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}
		upstream = api.NewProxy(target, logger)
	} else {
		logger.Warn("No upstream configured, admitted requests are echoed")
	}

	trusted, err := httputil.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	srv, err := api.NewServer(compiled, api.Options{
		Deps: pipeline.Deps{
			Limiter:       limiter,
			Authenticator: auth.NewAuthenticator(codec, logger, metrics),
			Authorizer:    rbac.NewAuthorizer(),
			Logger:        logger,
			Metrics:       metrics,
			Audit:         trail,
		},
		Upstream:       upstream,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		TrustedProxies: trusted,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health checks and metrics live on their own port
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, healthServer)
	if memStore != nil {
		sweeper, err := startSweeper(cfg.RateLimit.SweepSchedule, memStore, metrics, logger)
		if err != nil {
			return err
		}
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			select {
			case <-sweeper.Stop().Done():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error {
			return redisClient.Close()
		})
	}
	shutdown.RegisterShutdownFunc(func(context.Context) error {
		return trail.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(httpServer, "Gate", logger)
	})
	g.Go(func() error {
		return serve(healthServer, "Health", logger)
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown(gctx)
	})

	return g.Wait()
}

func serve(srv *http.Server, name string, logger *observability.Logger) error {
	logger.Infof("%s server listening on %s", name, srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server failed: %w", name, err)
	}
	return nil
}

// newStore returns the configured counter store. The memory store is also
// returned on its own so it can be swept; the redis client for health checks.
func newStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *observability.Logger) (ratelimit.Store, *ratelimit.MemoryStore, *redis.Client, error) {
	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			DialTimeout: cfg.Redis.DialTimeout,
		})

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Not fatal: the limiter fails open (or closed) until Redis is back
			logger.WithError(err).WithField("addr", cfg.Redis.Addr).Warn("Redis not reachable at startup")
		}

		logger.WithField("addr", cfg.Redis.Addr).Info("Using redis rate limit store")
		return ratelimit.NewRedisStore(client, metrics), nil, client, nil

	default:
		mem, err := ratelimit.NewMemoryStore(cfg.RateLimit.MemoryMaxKeys)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create memory store: %w", err)
		}
		logger.WithField("max_keys", cfg.RateLimit.MemoryMaxKeys).Info("Using in-memory rate limit store")
		return mem, mem, nil, nil
	}
}

// newAuditTrail builds the configured audit sinks
func newAuditTrail(cfg config.AuditConfig, logger *observability.Logger) (*audit.MultiLogger, error) {
	var sinks []audit.Logger
	if cfg.Log {
		sinks = append(sinks, audit.NewLogLogger(logger))
	}
	if cfg.Dir != "" {
		file, err := audit.NewFileLogger(audit.FileLoggerConfig{
			Dir:      cfg.Dir,
			MaxSize:  cfg.MaxSize,
			MaxFiles: cfg.MaxFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		sinks = append(sinks, file)
	}
	trail := audit.NewMultiLogger(sinks...)
	logger.WithField("sinks", trail.Len()).Info("Audit trail configured")
	return trail, nil
}

// startSweeper drops expired counters from the memory store on schedule
func startSweeper(schedule string, store *ratelimit.MemoryStore, metrics *observability.Metrics, logger *observability.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		defer observability.RecoverPanic(logger, "memory store sweep")

		swept := store.Sweep(time.Now())
		metrics.RecordMemoryStore(store.Len(), swept)
		if swept > 0 {
			logger.WithFields(map[string]interface{}{
				"swept":     swept,
				"remaining": store.Len(),
			}).Debug("Swept expired rate limit counters")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule memory store sweep: %w", err)
	}

	c.Start()
	return c, nil
}

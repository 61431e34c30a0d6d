// Command authcore-janitor runs the periodic session maintenance passes
// against a shared Redis: expired sessions are transitioned, terminal
// sessions past retention are purged, and accounts with suspicious IP
// spread get their sessions flagged.
//
// Configuration is environment-only; see janitorConfig for the
// variables.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/skillbridge/authcore/session"
)

type janitorConfig struct {
	RedisAddr     string        `env:"JANITOR_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string        `env:"JANITOR_REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"JANITOR_REDIS_DB" env-default:"0"`
	Interval      time.Duration `env:"JANITOR_INTERVAL" env-default:"5m"`
	SessionTTL    time.Duration `env:"JANITOR_SESSION_TTL" env-default:"720h"`
	Retention     time.Duration `env:"JANITOR_RETENTION" env-default:"720h"`
	PurgeAfter    time.Duration `env:"JANITOR_PURGE_AFTER" env-default:"720h"`
	MetricsAddr   string        `env:"JANITOR_METRICS_ADDR" env-default:":9109"`
}

type janitorMetrics struct {
	swept   prometheus.Counter
	purged  prometheus.Counter
	flagged prometheus.Counter
	passes  prometheus.Counter
	errors  prometheus.Counter
}

func newJanitorMetrics(reg *prometheus.Registry) *janitorMetrics {
	factory := promauto.With(reg)
	return &janitorMetrics{
		swept: factory.NewCounter(prometheus.CounterOpts{
			Name: "authcore_janitor_sessions_swept_total",
			Help: "Sessions transitioned from active to expired.",
		}),
		purged: factory.NewCounter(prometheus.CounterOpts{
			Name: "authcore_janitor_sessions_purged_total",
			Help: "Terminal sessions hard-deleted past retention.",
		}),
		flagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "authcore_janitor_sessions_flagged_total",
			Help: "Sessions flagged suspicious by the IP-spread scan.",
		}),
		passes: factory.NewCounter(prometheus.CounterOpts{
			Name: "authcore_janitor_passes_total",
			Help: "Completed maintenance passes.",
		}),
		errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "authcore_janitor_errors_total",
			Help: "Failed maintenance sub-passes.",
		}),
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	var cfg janitorConfig
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer client.Close()

	sessions, err := session.NewManager(client, session.Config{
		TTL:       cfg.SessionTTL,
		Retention: cfg.Retention,
	})
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := sessions.Ping(ctx); err != nil {
		logger.Fatal("redis unreachable", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	metrics := newJanitorMetrics(registry)
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("janitor started",
		zap.String("redis", cfg.RedisAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.Duration("interval", cfg.Interval),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runPasses(ctx, logger, sessions, metrics, cfg.PurgeAfter)
	for {
		select {
		case <-ctx.Done():
			logger.Info("janitor stopping")
			return
		case <-ticker.C:
			runPasses(ctx, logger, sessions, metrics, cfg.PurgeAfter)
		}
	}
}

func runPasses(ctx context.Context, logger *zap.Logger, sessions *session.Manager, metrics *janitorMetrics, purgeAfter time.Duration) {
	swept, err := sessions.SweepExpired(ctx)
	if err != nil {
		metrics.errors.Inc()
		logger.Warn("sweep failed", zap.Error(err))
	}
	metrics.swept.Add(float64(swept))

	purged, err := sessions.PurgeOld(ctx, purgeAfter)
	if err != nil {
		metrics.errors.Inc()
		logger.Warn("purge failed", zap.Error(err))
	}
	metrics.purged.Add(float64(purged))

	flagged, err := sessions.FlagSuspicious(ctx)
	if err != nil {
		metrics.errors.Inc()
		logger.Warn("suspicious scan failed", zap.Error(err))
	}
	metrics.flagged.Add(float64(len(flagged)))
	for _, s := range flagged {
		logger.Warn("session flagged suspicious",
			zap.String("user_id", s.UserID),
			zap.String("session_id", s.ID),
			zap.String("ip", s.IPAddress),
		)
	}

	metrics.passes.Inc()
	logger.Info("maintenance pass",
		zap.Int("swept", swept),
		zap.Int("purged", purged),
		zap.Int("flagged", len(flagged)),
	)
}

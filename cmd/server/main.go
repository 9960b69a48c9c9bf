package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/waitlist/internal/api"
	"github.com/notifyhub/waitlist/internal/api/handler"
	"github.com/notifyhub/waitlist/internal/auth"
	"github.com/notifyhub/waitlist/internal/config"
	"github.com/notifyhub/waitlist/internal/db"
	"github.com/notifyhub/waitlist/internal/domain"
	"github.com/notifyhub/waitlist/internal/mailer"
	"github.com/notifyhub/waitlist/internal/metrics"
	"github.com/notifyhub/waitlist/internal/queue"
	"github.com/notifyhub/waitlist/internal/ratelimiter"
	"github.com/notifyhub/waitlist/internal/repository"
	"github.com/notifyhub/waitlist/internal/service"
	"github.com/notifyhub/waitlist/internal/telemetry"
	"github.com/notifyhub/waitlist/internal/worker"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("server stopped cleanly")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	// ---- storage ----
	store, ping, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// ---- dispatch queue ----
	var q queue.Queue
	switch cfg.QueueBackend {
	case config.QueueAMQP:
		aq, err := queue.DialAMQP(cfg.AMQPURL, cfg.AMQPQueueName, cfg.Workers, logger)
		if err != nil {
			return err
		}
		defer aq.Close() //nolint:errcheck
		q = aq
	default:
		q = queue.New(queue.Sizes{High: cfg.QueueHighSize, Normal: cfg.QueueNormalSize, Low: cfg.QueueLowSize})
	}

	// ---- mail ----
	transport, err := newTransport(cfg, logger)
	if err != nil {
		return err
	}
	renderer := mailer.NewRenderer(cfg.BrandName)

	// ---- metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if d, ok := q.(queue.DepthReporter); ok {
		metrics.RegisterQueueDepth(reg, d)
	}
	hooks := m.ServiceHooks()

	// ---- services ----
	claims := service.NewWelcomeClaims()
	members := service.NewMemberService(store.Members, renderer, transport, claims, cfg.AttemptTimeout, hooks, logger)
	broadcast := service.NewBroadcastService(store.Members, store.Campaigns, q,
		mailer.DefaultStaticContent(cfg.BrandName), hooks, logger)
	campaigns := service.NewCampaignService(store.Campaigns, members)
	authSvc := service.NewAuthService(store.Admins, auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)

	if cfg.AdminSeedEmail != "" {
		created, err := authSvc.EnsureSeedAdmin(ctx, cfg.AdminSeedEmail, cfg.AdminSeedPassword, cfg.AdminSeedName)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			logger.Info("seed administrator created", zap.String("email", cfg.AdminSeedEmail))
		}
	}

	// ---- workers ----
	// Workers outlive the signal context so HTTP can drain first.
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	pool := worker.NewPool(cfg, q, worker.Registry{
		domain.EmailWelcome:        service.NewWelcomeDispatcher(store.Members, renderer, transport, claims, logger),
		domain.EmailCampaignUpdate: service.NewCampaignDispatcher(store.Members, store.Campaigns, renderer, transport, hooks, logger),
	}, ratelimiter.New(cfg.MailRateLimit), logger, m.WorkerHooks())
	pool.Start(workerCtx)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WelcomeSweepSchedule != "" {
		sweeper := worker.NewWelcomeSweeper(store.Members, q, claims, cfg.WelcomeSweepSchedule, cfg.WelcomeSweepBatch, logger)
		g.Go(func() error { return sweeper.Run(gctx) })
	}

	// ---- HTTP server ----
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.Deps{
			Members:   members,
			Broadcast: broadcast,
			Campaigns: campaigns,
			Auth:      authSvc,
			Queue:     q,
			Ping:      ping,
			Gatherer:  reg,
			Origins:   cfg.CORSAllowedOrigins,
			Logger:    logger,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// 1. Stop accepting new HTTP requests.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 2. Stop workers and campaign fan-outs; in-flight attempts finish,
		//    pending retries and unqueued campaign emails are dropped.
		cancelWorkers()
		broadcast.Close()
		pool.Wait()
		return nil
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Store, handler.Pinger, func(), error) {
	if cfg.StoreDriver == config.DriverSQLite {
		sqlDB, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("sqlite store ready", zap.String("path", cfg.SQLitePath))
		return repository.NewSQLiteStore(sqlDB), sqlPinger(sqlDB), func() { _ = sqlDB.Close() }, nil
	}

	pool, err := db.Connect(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logger.Info("database migrations applied")
	return repository.NewPgStore(pool), pool.Ping, pool.Close, nil
}

func sqlPinger(d *sql.DB) handler.Pinger {
	return d.PingContext
}

func newTransport(cfg *config.Config, logger *zap.Logger) (mailer.Transport, error) {
	from := mailer.Sender{Address: cfg.MailFromAddress, Name: cfg.MailFromName}
	switch cfg.MailTransport {
	case config.TransportSMTP:
		return mailer.NewSMTPTransport(mailer.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			TLSPolicy: cfg.SMTPTLSPolicy,
			Timeout:   cfg.SMTPTimeout,
		}, from)
	case config.TransportWebhook:
		return mailer.NewWebhookTransport(cfg.MailWebhookURL, cfg.MailWebhookTimeout, from), nil
	default:
		return mailer.NewLogTransport(logger), nil
	}
}

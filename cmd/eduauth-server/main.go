package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/eduAuth"
	"github.com/MrEthical07/eduAuth/accountstore"
	"github.com/MrEthical07/eduAuth/auditlog"
	"github.com/MrEthical07/eduAuth/internal/config"
	"github.com/MrEthical07/eduAuth/internal/httpapi"
	"github.com/MrEthical07/eduAuth/internal/logger"
	"github.com/MrEthical07/eduAuth/notify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("EDUAUTH_CONFIG"), "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "eduauth-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	engineCfg, err := cfg.Engine()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, repo, err := openAccounts(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	recorder, err := auditRecorder(cfg.Audit.Sink, db, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := eduAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithAccountRepository(repo).
		WithNotificationSender(notifier(cfg.SMTP, cfg.Logging.Environment, log)).
		WithAuditRecorder(recorder).
		WithLogger(log).
		WithMetricsRegisterer(reg).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	requestMetrics, err := httpapi.NewRequestMetrics(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	if cfg.Logging.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(engine, httpapi.Options{
		Logger:         log,
		Metrics:        requestMetrics,
		MetricsPath:    cfg.Server.MetricsPath,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Ready: func(ctx context.Context) error {
			if err := rdb.Ping(ctx).Err(); err != nil {
				return err
			}
			if db != nil {
				return db.PingContext(ctx)
			}
			return nil
		},
	})

	return serve(ctx, cfg.Server, router, log)
}

func openAccounts(ctx context.Context, cfg *config.Config, log *zap.Logger) (*sql.DB, eduAuth.AccountRepository, error) {
	if cfg.Database.DSN == "" {
		if cfg.Logging.Environment == "production" {
			return nil, nil, errors.New("database dsn is required in production")
		}
		log.Warn("no database configured, accounts are kept in memory")
		return nil, accountstore.NewMemory(), nil
	}

	db, err := accountstore.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := accountstore.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Info("database migrations applied")
	}
	return db, accountstore.NewPostgres(db), nil
}

func auditRecorder(sink string, db *sql.DB, log *zap.Logger) (eduAuth.AuditRecorder, error) {
	switch sink {
	case "", "log":
		return auditlog.NewZap(log), nil
	case "stdout":
		return auditlog.NewJSONWriter(os.Stdout), nil
	case "postgres":
		if db == nil {
			return nil, errors.New("audit sink postgres requires a database dsn")
		}
		return auditlog.NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unknown audit sink %q", sink)
	}
}

func notifier(cfg config.SMTPConfig, environment string, log *zap.Logger) eduAuth.NotificationSender {
	if !cfg.Enabled() {
		log.Warn("smtp not configured, notifications are logged")
		return notify.NewLogSender(log, environment != "production")
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		From:      cfg.From,
		VerifyURL: cfg.VerifyURL,
		ResetURL:  cfg.ResetURL,
		Product:   cfg.Product,
	})
}

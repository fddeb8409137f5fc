package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-passwordless"
	"github.com/goliatone/go-passwordless/activitymap"
	"github.com/goliatone/go-print"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type serverConfig struct {
	Address   string `env:"PASSWORDLESS_HTTP_ADDRESS" envDefault:":8080"`
	DSN       string `env:"PASSWORDLESS_DSN" envDefault:"file:passwordless.db?cache=shared"`
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`
	Debug     bool   `env:"PASSWORDLESS_DEBUG"`
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("passwordless"),
		glog.WithAddSource(false),
	)
	logger := lgr.GetLogger("main")
	provider := passwordless.GlogProvider(lgr)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := passwordless.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "error", err)
	}

	srvCfg := serverConfig{}
	if err := env.Parse(&srvCfg); err != nil {
		logger.Fatal("failed to load server config", "error", err)
	}

	smtpCfg := passwordless.SMTPConfig{}
	if err := env.Parse(&smtpCfg); err != nil {
		logger.Fatal("failed to load smtp config", "error", err)
	}

	if srvCfg.Debug {
		logger.Debug("passwordless config", "config", print.MaybePrettyJSON(cfg))
	}

	ctx := context.Background()

	db, err := openDB(ctx, srvCfg.DSN)
	if err != nil {
		logger.Fatal("failed to open database", "error", err)
	}
	defer db.Close()

	repo := passwordless.NewRepositoryManager(db)
	if err := repo.Validate(); err != nil {
		logger.Fatal("invalid repository manager", "error", err)
	}

	activity := activityLogger(provider.GetLogger("activity"))

	service := passwordless.NewTokenService(repo, cfg).
		WithLoggerProvider(provider).
		WithActivitySink(activity).
		WithEmailSender(passwordless.NewSMTPMailer(smtpCfg))

	if cfg.AuthTypeEnabled(passwordless.AliasMobile) {
		sms, err := passwordless.NewSNSSender(ctx, srvCfg.AWSRegion)
		if err != nil {
			logger.Fatal("failed to configure sns", "error", err)
		}
		service.WithSMSSender(sms)
	}

	if cfg.TemplateDir != "" {
		service.WithTemplateRenderer(passwordless.NewTemplateRenderer(cfg.TemplateDir))
	}

	if err := passwordless.RegisterRules(repo, cfg, service,
		passwordless.WithRuleLoggerProvider(provider),
		passwordless.WithRuleActivitySink(activity),
	); err != nil {
		logger.Fatal("failed to register rules", "error", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      "passwordless",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	passwordless.RegisterPasswordlessRoutes(app,
		passwordless.WithControllerRepository(repo),
		passwordless.WithControllerConfig(cfg),
		passwordless.WithControllerSender(service),
		passwordless.WithControllerActivitySink(activity),
		passwordless.WithControllerLogger(provider.GetLogger("http")),
		passwordless.WithControllerDebug(srvCfg.Debug),
	)

	go func() {
		if err := app.Listen(srvCfg.Address); err != nil {
			logger.Error("server stopped", "error", err)
		}
	}()

	sig := WaitExitSignal()
	logger.Info("shutting down", "signal", sig.String())

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("failed to shut down server", "error", err)
	}
}

func activityLogger(logger glog.Logger) passwordless.ActivitySink {
	return passwordless.ActivitySinkFunc(func(_ context.Context, event passwordless.ActivityEvent) error {
		record := activitymap.Normalize(event)
		logger.Info("activity", "verb", record.Verb, "record", print.MaybePrettyJSON(record))
		return nil
	})
}

func openDB(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	if err := passwordless.Migrate(ctx, db, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}

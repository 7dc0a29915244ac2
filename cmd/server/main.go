// @title                       Account Service API
// @version                     1.0
// @description                 Account registration, e-mail confirmation, authentication and administration.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the access token.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"github.com/inkwell/account-service/internal/api"
	"github.com/inkwell/account-service/internal/api/handler"
	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
	"github.com/inkwell/account-service/internal/core/security"
	"github.com/inkwell/account-service/internal/core/service"
	mongostore "github.com/inkwell/account-service/internal/infrastructure/db/mongo"
	pgstore "github.com/inkwell/account-service/internal/infrastructure/db/postgres"
	"github.com/inkwell/account-service/internal/infrastructure/db/postgres/migrations"
	redisstore "github.com/inkwell/account-service/internal/infrastructure/db/redis"
	"github.com/inkwell/account-service/internal/infrastructure/mail"
	"github.com/inkwell/account-service/internal/infrastructure/queue"
	"github.com/inkwell/account-service/internal/pkg/config"
	"github.com/inkwell/account-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadFrom(context.Background(), envconfig.OsLookuper())
	if err != nil {
		bootLog := logger.Init(logger.Options{Service: "account-service"})
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "account-service",
	})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("fatal error")
		os.Exit(1)
	}
}

// store is the account repository together with its connection lifecycle.
type store struct {
	repo  ports.AccountRepository
	ping  handler.Pinger
	name  string
	close func(context.Context) error
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("env", cfg.Env).
		Str("store", cfg.Store.Driver).
		Str("authz_model", cfg.Auth.Model).
		Bool("require_email_confirmation", cfg.Auth.RequireEmailConfirmation).
		Msg("starting account service")

	// --- Storage ---
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.close(context.Background()); cerr != nil {
			log.Error().Err(cerr).Msg("close store failed")
		}
	}()

	health := map[string]handler.Pinger{st.name: st.ping}

	var guard queue.SentGuard
	if cfg.Redis.Enabled {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func(c *goredis.Client) {
			if cerr := c.Close(); cerr != nil {
				log.Error().Err(cerr).Msg("close redis failed")
			}
		}(rdb)
		guard = redisstore.NewSentGuard(rdb, 0)
		health["redis"] = redisstore.Pinger{Client: rdb}
	} else {
		log.Warn().Msg("redis disabled, mail delivery is not deduplicated")
	}

	// --- Security primitives ---
	policy, err := domain.NewPolicy(cfg.Auth.Model)
	if err != nil {
		return err
	}
	hasher := security.NewHasher(cfg.Auth.HashCost)
	tokens := security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	codes := security.NewCodeGenerator(cfg.Auth.ConfirmationCodeLength)

	// --- Mail ---
	var sender ports.MailSender
	if cfg.SMTPEnabled() {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Mail.SMTPHost,
			Port:     cfg.Mail.SMTPPort,
			Username: cfg.Mail.SMTPUsername,
			Password: cfg.Mail.SMTPPassword,
			From:     cfg.Mail.From,
			FromName: cfg.Mail.AppName,
		})
	} else {
		log.Warn().Msg("SMTP_HOST not set, outbound mail is only logged")
		sender = mail.NewLogSender(logger.Component("mail"))
	}

	dispatcher := queue.NewDispatcher(cfg.Mail.Workers, sender, guard, logger.Component("dispatcher"))
	// The signal context must not stop the workers: Shutdown drains them.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatcher.Start(dispatchCtx)

	notifier, err := mail.NewNotifier(dispatcher, mail.NotifierConfig{
		AppName:         cfg.Mail.AppName,
		FrontendURL:     cfg.Mail.FrontendURL,
		ConfirmationTTL: cfg.Auth.ConfirmationTTL,
	})
	if err != nil {
		return err
	}

	// --- Services ---
	accounts := service.NewAccountService(st.repo, hasher, tokens, codes, notifier, policy, service.Options{
		RequireConfirmation: cfg.Auth.RequireEmailConfirmation,
		ConfirmationTTL:     cfg.Auth.ConfirmationTTL,
		ResendCooldown:      cfg.Auth.ResendCooldown,
	}, logger.Component("accounts"))
	access := service.NewAccessService(st.repo, tokens, policy, logger.Component("access"))

	if cfg.Auth.AdminEmail != "" {
		if err := accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			return err
		}
	}

	// --- HTTP ---
	e := api.NewRouter(api.RouterDeps{
		Accounts: accounts,
		Access:   access,
		Health:   health,
		Log:      logger.Component("http"),
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("mail dispatcher shutdown failed")
	}

	log.Info().Msg("account service stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*store, error) {
	switch cfg.Store.Driver {
	case config.StorePostgres:
		pg, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:          cfg.Postgres.DSN,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Postgres.MaxIdleConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := migrations.Migrate(pg.DB); err != nil {
			_ = pg.Close(ctx)
			return nil, err
		}
		log.Info().Msg("postgres migrations applied")
		return &store{repo: pgstore.NewAccountRepository(pg.DB), ping: pg, name: "postgres", close: pg.Close}, nil

	default:
		mdb, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
			AppName:  "account-service",
		})
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		repo := mongostore.NewAccountRepository(mdb.DB)
		if err := repo.EnsureIndexes(ctx); err != nil {
			_ = mdb.Close(ctx)
			return nil, err
		}
		log.Info().Msg("mongodb indexes ensured")
		return &store{repo: repo, ping: mdb, name: "mongodb", close: mdb.Close}, nil
	}
}

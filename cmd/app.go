package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/mailer"
	"github.com/vibast-solutions/ms-go-identity/app/ratelimit"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/security"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	loginLimiterPrefix = "identity:login"
	resetLimiterPrefix = "identity:reset"
)

// application holds the wired services shared by every command.
type application struct {
	db       *sql.DB
	redis    *redis.Client
	tokens   *service.TokenIssuer
	accounts service.AccountService
	profiles service.ProfileService
	resets   service.PasswordResetService
}

func newApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	db, err := openDatabase(ctx, cfg.MySQL)
	if err != nil {
		return nil, err
	}

	app := &application{db: db}

	accountOpts := []service.Option{}
	resetOpts := []service.Option{}
	if cfg.Redis.Enabled() {
		app.redis, err = ratelimit.Connect(ctx, ratelimit.Config{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		})
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		accountOpts = append(accountOpts, service.WithLimiter(
			ratelimit.NewRedisLimiter(app.redis, loginLimiterPrefix, cfg.Redis.LoginAttempts, cfg.Redis.Window),
		))
		resetOpts = append(resetOpts, service.WithLimiter(
			ratelimit.NewRedisLimiter(app.redis, resetLimiterPrefix, cfg.Redis.ResetAttempts, cfg.Redis.Window),
		))
	} else {
		logrus.Info("REDIS_ADDR not set, rate limiting disabled")
	}

	var sender mailer.Sender = mailer.NewLogSender()
	if cfg.Mail.Host != "" {
		sender = mailer.NewSMTPSender(cfg.Mail)
	} else {
		logrus.Warn("SMTP_HOST not set, password reset emails will not be delivered")
	}

	hasher := security.NewArgon2idHasher(security.DefaultArgon2Params())
	accountRepo := repository.NewAccountRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)

	app.tokens = service.NewTokenIssuer(cfg.JWT, nil)
	app.accounts = service.NewAccountService(db, accountRepo, hasher, app.tokens, cfg, accountOpts...)
	app.profiles = service.NewProfileService(accountRepo, cfg)
	app.resets = service.NewPasswordResetService(db, accountRepo, resetRepo, hasher, sender, cfg, resetOpts...)

	return app, nil
}

func (a *application) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
}

func openDatabase(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// normalizeDSN forces the driver options the repositories rely on: DATETIME
// columns scanned into time.Time, in UTC.
func normalizeDSN(dsn string) (string, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse MYSQL_DSN: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/mailer"
	"github.com/vibast-solutions/ms-go-identity/app/metrics"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/security"
	"github.com/vibast-solutions/ms-go-identity/app/types"
	"github.com/vibast-solutions/ms-go-identity/config"
)

const (
	MessageResetRequested = "if the email is registered, a password reset link has been sent"
	MessagePasswordReset  = "password has been reset successfully"
)

type passwordResetPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PasswordResetService interface {
	RequestReset(ctx context.Context, req *types.ForgotPasswordRequest) (*types.MessageResponse, error)
	ConfirmReset(ctx context.Context, req *types.ResetPasswordRequest) (*types.MessageResponse, error)
	PruneExpired(ctx context.Context) (int64, error)
}

type passwordResetService struct {
	options
	db        *sql.DB
	accounts  accountRepository
	resets    passwordResetPruner
	hasher    security.PasswordHasher
	sender    mailer.Sender
	cfg       *config.Config
	validator *types.Validator
}

func NewPasswordResetService(
	db *sql.DB,
	accounts accountRepository,
	resets passwordResetPruner,
	hasher security.PasswordHasher,
	sender mailer.Sender,
	cfg *config.Config,
	opts ...Option,
) PasswordResetService {
	return &passwordResetService{
		options:   applyOptions(opts),
		db:        db,
		accounts:  accounts,
		resets:    resets,
		hasher:    hasher,
		sender:    sender,
		cfg:       cfg,
		validator: types.NewValidator(),
	}
}

// RequestReset answers identically whether or not the email is registered.
// Only a failed lookup, which does not depend on existence, is reported.
func (s *passwordResetService) RequestReset(ctx context.Context, req *types.ForgotPasswordRequest) (*types.MessageResponse, error) {
	if err := s.validator.Validate(req).Err(); err != nil {
		return nil, err
	}

	generic := &types.MessageResponse{Message: MessageResetRequested}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	canonicalEmail := CanonicalizeEmail(req.Email)
	if !s.allow(ctx, canonicalEmail) {
		metrics.PasswordResetsTotal.WithLabelValues("request", "rate_limited").Inc()
		return generic, nil
	}

	account, err := s.accounts.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("request", "error").Inc()
		return nil, err
	}
	if account == nil {
		metrics.PasswordResetsTotal.WithLabelValues("request", "unknown_email").Inc()
		return generic, nil
	}

	token, err := s.issue(ctx, account)
	if err != nil {
		logrus.WithError(err).WithField("account_id", account.ID).Error("Failed to issue password reset token")
		metrics.PasswordResetsTotal.WithLabelValues("request", "error").Inc()
		return generic, nil
	}

	s.asyncRunner(func() {
		s.deliver(account, token)
	})

	metrics.PasswordResetsTotal.WithLabelValues("request", "issued").Inc()
	return generic, nil
}

// issue stores a fresh token digest for account, replacing any live one, and
// returns the plaintext token.
func (s *passwordResetService) issue(ctx context.Context, account *entity.Account) (string, error) {
	token, digest, err := security.GenerateResetToken()
	if err != nil {
		return "", err
	}

	now := s.clock()
	reset := &entity.PasswordReset{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		TokenHash: digest,
		ExpiresAt: now.Add(s.cfg.Tokens.ResetTTL),
		CreatedAt: now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", repository.Classify("begin issue reset", err)
	}
	defer tx.Rollback()

	if err = repository.NewPasswordResetRepository(tx).Upsert(ctx, reset); err != nil {
		return "", err
	}
	if err = tx.Commit(); err != nil {
		return "", repository.Classify("commit issue reset", err)
	}

	return token, nil
}

func (s *passwordResetService) deliver(account *entity.Account, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout())
	defer cancel()

	entry := logrus.WithField("account_id", account.ID)

	err := func() error {
		link, err := mailer.PasswordResetLink(s.cfg.Tokens.ResetURL, account.Email, token)
		if err != nil {
			return err
		}
		body, err := mailer.RenderPasswordReset(account.Email, link, s.cfg.Tokens.ResetTTL.String())
		if err != nil {
			return err
		}
		return s.sender.Send(ctx, account.Email, mailer.PasswordResetSubject, body)
	}()
	if err != nil {
		metrics.EmailsTotal.WithLabelValues("failed").Inc()
		entry.WithError(fmt.Errorf("%w: %w", ErrEmailDeliveryFailed, err)).Error("Failed to send password reset email")
		return
	}

	metrics.EmailsTotal.WithLabelValues("sent").Inc()
	entry.Info("Password reset email sent")
}

func (s *passwordResetService) sendTimeout() time.Duration {
	if s.cfg.Mail.SendTimeout > 0 {
		return s.cfg.Mail.SendTimeout
	}
	return 10 * time.Second
}

// ConfirmReset consumes the live token of the account. The reset row is
// locked for the whole transaction so two concurrent confirmations of the same
// token cannot both succeed.
func (s *passwordResetService) ConfirmReset(ctx context.Context, req *types.ResetPasswordRequest) (*types.MessageResponse, error) {
	verr := s.validator.Validate(req)
	if req.NewPassword != "" {
		if perr := s.cfg.Password.Policy.Validate(req.NewPassword); perr != nil {
			verr = verr.Add("new_password", perr.Error())
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	// hashed up front so unknown and known emails cost the same
	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	account, err := s.accounts.FindByCanonicalEmail(ctx, CanonicalizeEmail(req.Email))
	if err != nil {
		return nil, err
	}
	if account == nil {
		metrics.PasswordResetsTotal.WithLabelValues("confirm", "unknown_email").Inc()
		return nil, ErrAccountNotFound
	}

	if err = s.consume(ctx, account, req.Token, passwordHash); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("confirm", confirmResult(err)).Inc()
		return nil, err
	}

	logrus.WithField("account_id", account.ID).Info("Password reset completed")
	metrics.PasswordResetsTotal.WithLabelValues("confirm", "success").Inc()
	return &types.MessageResponse{Message: MessagePasswordReset}, nil
}

func (s *passwordResetService) consume(ctx context.Context, account *entity.Account, token, passwordHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Classify("begin confirm reset", err)
	}
	defer tx.Rollback()

	txResets := repository.NewPasswordResetRepository(tx)
	reset, err := txResets.FindByAccountIDForUpdate(ctx, account.ID)
	if err != nil {
		return err
	}
	if reset == nil {
		return ErrInvalidOrExpiredToken
	}

	now := s.clock()
	if reset.Expired(now) {
		if _, err = txResets.Delete(ctx, reset.ID); err != nil {
			return err
		}
		if err = tx.Commit(); err != nil {
			return repository.Classify("commit expired reset", err)
		}
		return ErrInvalidOrExpiredToken
	}

	if !security.VerifyResetToken(token, reset.TokenHash) {
		return ErrInvalidOrExpiredToken
	}

	if err = repository.NewAccountRepository(tx).UpdatePassword(ctx, account.ID, passwordHash, now); err != nil {
		return err
	}
	if _, err = txResets.Delete(ctx, reset.ID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return repository.Classify("commit confirm reset", err)
	}
	return nil
}

func (s *passwordResetService) PruneExpired(ctx context.Context) (int64, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	return s.resets.DeleteExpired(ctx, s.clock())
}

func confirmResult(err error) string {
	if errors.Is(err, ErrInvalidOrExpiredToken) {
		return "invalid_token"
	}
	return "error"
}

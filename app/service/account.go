package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/metrics"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/security"
	"github.com/vibast-solutions/ms-go-identity/app/types"
	"github.com/vibast-solutions/ms-go-identity/config"
)

const (
	MessageRegistered      = "registration successful"
	MessagePasswordChanged = "password changed successfully"

	lastLoginUpdateTimeout = 5 * time.Second
)

type accountRepository interface {
	FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Account, error)
	FindByID(ctx context.Context, id string) (*entity.Account, error)
	Search(ctx context.Context, term string, limit int) ([]*entity.Account, error)
	UpdateProfile(ctx context.Context, account *entity.Account) error
	UpdateLastLogin(ctx context.Context, id string, lastLogin time.Time) error
	ReplacePasswordHash(ctx context.Context, id, currentHash, newHash string, updatedAt time.Time) (bool, error)
}

type AccountService interface {
	Register(ctx context.Context, req *types.RegisterRequest) (*types.MessageResponse, error)
	Login(ctx context.Context, req *types.LoginRequest) (*types.LoginResponse, error)
	ChangePassword(ctx context.Context, accountID string, req *types.ChangePasswordRequest) error
	Provision(ctx context.Context, req *types.RegisterRequest, roles ...string) (*entity.Account, error)
}

type accountService struct {
	options
	db        *sql.DB
	accounts  accountRepository
	hasher    security.PasswordHasher
	tokens    *TokenIssuer
	cfg       *config.Config
	validator *types.Validator
}

func NewAccountService(
	db *sql.DB,
	accounts accountRepository,
	hasher security.PasswordHasher,
	tokens *TokenIssuer,
	cfg *config.Config,
	opts ...Option,
) AccountService {
	return &accountService{
		options:   applyOptions(opts),
		db:        db,
		accounts:  accounts,
		hasher:    hasher,
		tokens:    tokens,
		cfg:       cfg,
		validator: types.NewValidator(),
	}
}

func (s *accountService) Register(ctx context.Context, req *types.RegisterRequest) (*types.MessageResponse, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	if _, err := s.create(ctx, req, entity.RoleUser); err != nil {
		metrics.RegistrationsTotal.WithLabelValues(registrationResult(err)).Inc()
		return nil, err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	return &types.MessageResponse{Message: MessageRegistered}, nil
}

// Provision creates an account with an explicit role set. It shares every
// precondition with Register.
func (s *accountService) Provision(ctx context.Context, req *types.RegisterRequest, roles ...string) (*entity.Account, error) {
	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	if len(roles) == 0 {
		roles = []string{entity.RoleUser}
	}
	return s.create(ctx, req, roles...)
}

func (s *accountService) create(ctx context.Context, req *types.RegisterRequest, roles ...string) (*entity.Account, error) {
	verr := s.validator.Validate(req)
	if req.Password != "" {
		if perr := s.cfg.Password.Policy.Validate(req.Password); perr != nil {
			verr = verr.Add("password", perr.Error())
		}
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	canonicalEmail := CanonicalizeEmail(req.Email)
	existing, err := s.accounts.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	account := &entity.Account{
		ID:             uuid.NewString(),
		Email:          req.Email,
		CanonicalEmail: canonicalEmail,
		PasswordHash:   passwordHash,
		FirstName:      nullString(req.FirstName),
		LastName:       nullString(req.LastName),
		Avatar:         entity.DefaultAvatar,
		Roles:          roles,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, repository.Classify("begin register", err)
	}
	defer tx.Rollback()

	txAccounts := repository.NewAccountRepository(tx)
	if err = txAccounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	for _, role := range roles {
		if err = txAccounts.AddRole(ctx, account.ID, role); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, repository.Classify("commit register", err)
	}

	logrus.WithFields(logrus.Fields{
		"account_id": account.ID,
		"roles":      roles,
	}).Info("Account created")

	return account, nil
}

func (s *accountService) Login(ctx context.Context, req *types.LoginRequest) (*types.LoginResponse, error) {
	if err := s.validator.Validate(req).Err(); err != nil {
		return nil, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	canonicalEmail := CanonicalizeEmail(req.Email)
	if !s.allow(ctx, canonicalEmail) {
		metrics.LoginsTotal.WithLabelValues("rate_limited").Inc()
		return nil, ErrTooManyAttempts
	}

	account, err := s.accounts.FindByCanonicalEmail(ctx, canonicalEmail)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if account == nil {
		s.hasher.VerifyDummy(req.Password)
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(req.Password, account.PasswordHash)
	if err != nil {
		logrus.WithError(err).WithField("account_id", account.ID).Error("Stored password hash is unreadable")
	}
	if !ok {
		metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}

	token, _, err := s.tokens.Issue(account)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	loginAt := s.clock()
	rehash := s.hasher.NeedsRehash(account.PasswordHash)
	s.asyncRunner(func() {
		updateCtx, cancel := context.WithTimeout(context.Background(), lastLoginUpdateTimeout)
		defer cancel()

		if updateErr := s.accounts.UpdateLastLogin(updateCtx, account.ID, loginAt); updateErr != nil {
			logrus.WithError(updateErr).WithField("account_id", account.ID).Error("Failed to update last_login_at")
		}
		if rehash {
			s.upgradeHash(updateCtx, account, req.Password, loginAt)
		}
	})

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	return &types.LoginResponse{
		Token:     token,
		TokenType: TokenTypeBearer,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}

// upgradeHash moves a verified password onto the current hashing scheme.
// Failures only cost the upgrade; the login already succeeded.
func (s *accountService) upgradeHash(ctx context.Context, account *entity.Account, password string, at time.Time) {
	entry := logrus.WithField("account_id", account.ID)

	newHash, err := s.hasher.Hash(password)
	if err != nil {
		entry.WithError(err).Error("Failed to rehash password")
		return
	}
	replaced, err := s.accounts.ReplacePasswordHash(ctx, account.ID, account.PasswordHash, newHash, at)
	if err != nil {
		entry.WithError(err).Error("Failed to store rehashed password")
		return
	}
	if replaced {
		entry.Info("Password hash upgraded")
	}
}

func (s *accountService) ChangePassword(ctx context.Context, accountID string, req *types.ChangePasswordRequest) error {
	verr := s.validator.Validate(req)
	if req.NewPassword != "" {
		if perr := s.cfg.Password.Policy.Validate(req.NewPassword); perr != nil {
			verr = verr.Add("new_password", perr.Error())
		}
	}
	if err := verr.Err(); err != nil {
		return err
	}

	ctx, cancel := withStoreTimeout(ctx, s.cfg.MySQL.StoreTimeout)
	defer cancel()

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}

	ok, err := s.hasher.Verify(req.OldPassword, account.PasswordHash)
	if err != nil {
		logrus.WithError(err).WithField("account_id", account.ID).Error("Stored password hash is unreadable")
	}
	if !ok {
		return ErrPasswordMismatch
	}

	passwordHash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Classify("begin change password", err)
	}
	defer tx.Rollback()

	if err = repository.NewAccountRepository(tx).UpdatePassword(ctx, account.ID, passwordHash, s.clock()); err != nil {
		return err
	}
	// an outstanding reset link must not outlive a deliberate password change
	if err = repository.NewPasswordResetRepository(tx).DeleteByAccountID(ctx, account.ID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return repository.Classify("commit change password", err)
	}
	return nil
}

func registrationResult(err error) string {
	var verr *types.ValidationError
	switch {
	case errors.Is(err, ErrDuplicateEmail):
		return "duplicate"
	case errors.As(err, &verr):
		return "invalid"
	default:
		return "error"
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

package service_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/security"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/DATA-DOG/go-sqlmock"
)

const (
	findByCanonicalEmailQuery  = `(?s)SELECT id, email, canonical_email, password_hash, first_name, last_name, avatar, last_login_at, created_at, updated_at\s+FROM accounts WHERE canonical_email = \?`
	findByIDQuery              = `(?s)SELECT id, email, canonical_email, password_hash, first_name, last_name, avatar, last_login_at, created_at, updated_at\s+FROM accounts WHERE id = \?`
	listAccountRolesQuery      = `(?s)SELECT role FROM account_roles WHERE account_id = \? ORDER BY role`
	insertAccountQuery         = `(?s)INSERT INTO accounts \(id, email, canonical_email, password_hash, first_name, last_name, avatar, created_at, updated_at\)\s+VALUES`
	insertAccountRoleQuery     = `(?s)INSERT INTO account_roles \(account_id, role\) VALUES \(\?, \?\)`
	searchAccountsQuery        = `(?s)SELECT id, .+\s+FROM accounts\s+WHERE LOWER\(email\) LIKE \?`
	updatePasswordQuery        = `(?s)UPDATE accounts SET password_hash = \?, updated_at = \? WHERE id = \?`
	replacePasswordHashQuery   = `(?s)UPDATE accounts SET password_hash = \?, updated_at = \? WHERE id = \? AND password_hash = \?`
	updateProfileQuery         = `(?s)UPDATE accounts SET\s+first_name = \?,\s+last_name = \?,\s+avatar = \?,\s+updated_at = \?\s+WHERE id = \?`
	updateLastLoginQuery       = `(?s)UPDATE accounts SET last_login_at = \? WHERE id = \?`
	upsertPasswordResetQuery   = `(?s)INSERT INTO password_resets \(id, account_id, token_hash, expires_at, created_at\)\s+VALUES \(\?, \?, \?, \?, \?\)\s+ON DUPLICATE KEY UPDATE`
	findPasswordResetForUpdate = `(?s)SELECT id, account_id, token_hash, expires_at, created_at\s+FROM password_resets WHERE account_id = \? FOR UPDATE`
	deletePasswordResetQuery   = `(?s)DELETE FROM password_resets WHERE id = \?`
	deleteResetsByAccountQuery = `(?s)DELETE FROM password_resets WHERE account_id = \?`
	deleteExpiredResetsQuery   = `(?s)DELETE FROM password_resets WHERE expires_at <= \?`
)

var (
	accountColumns = []string{
		"id",
		"email",
		"canonical_email",
		"password_hash",
		"first_name",
		"last_name",
		"avatar",
		"last_login_at",
		"created_at",
		"updated_at",
	}
	roleColumns = []string{
		"role",
	}
	passwordResetColumns = []string{
		"id",
		"account_id",
		"token_hash",
		"expires_at",
		"created_at",
	}

	resetTokenPattern = regexp.MustCompile(`token=([0-9a-f]{64})`)
)

var testNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, subject, htmlBody string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (s *fakeSender) messages() []sentMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMail(nil), s.sent...)
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allowed, l.err
}

// captureArg matches any string argument and remembers it.
type captureArg struct {
	value string
}

func (c *captureArg) Match(v driver.Value) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	c.value = s
	return true
}

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	cfg      *config.Config
	hasher   *security.Argon2idHasher
	tokens   *service.TokenIssuer
	sender   *fakeSender
	accounts service.AccountService
	profiles service.ProfileService
	resets   service.PasswordResetService
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:         "0123456789abcdef0123456789abcdef",
			Issuer:         "ms-go-identity",
			AccessTokenTTL: time.Hour,
		},
		Tokens: config.TokenConfig{
			ResetTTL: time.Hour,
			ResetURL: "https://app.example.com/reset-password",
		},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{MinLength: 6},
		},
		Mail: config.MailConfig{
			SendTimeout: time.Second,
		},
	}
}

func newTestHasher() *security.Argon2idHasher {
	return security.NewArgon2idHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
}

func newTestEnv(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testConfig(), opts...)
}

func newTestEnvWithConfig(t *testing.T, cfg *config.Config, opts ...service.Option) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	clock := func() time.Time { return testNow }
	base := []service.Option{
		service.WithClock(clock),
		service.WithAsyncRunner(func(task func()) { task() }),
	}
	opts = append(base, opts...)

	hasher := newTestHasher()
	tokens := service.NewTokenIssuer(cfg.JWT, clock)
	sender := &fakeSender{}
	accountRepo := repository.NewAccountRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)

	return &testEnv{
		db:       db,
		mock:     mock,
		cfg:      cfg,
		hasher:   hasher,
		tokens:   tokens,
		sender:   sender,
		accounts: service.NewAccountService(db, accountRepo, hasher, tokens, cfg, opts...),
		profiles: service.NewProfileService(accountRepo, cfg, opts...),
		resets:   service.NewPasswordResetService(db, accountRepo, resetRepo, hasher, sender, cfg, opts...),
	}
}

func (e *testEnv) hash(t *testing.T, password string) string {
	t.Helper()
	h, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	return h
}

func (e *testEnv) expectAccountByEmail(canonicalEmail, id, passwordHash string, roles ...string) {
	e.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs(canonicalEmail).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			id, canonicalEmail, canonicalEmail, passwordHash, "Ada", nil, entity.DefaultAvatar, nil, testNow, testNow,
		))
	e.expectRoles(id, roles...)
}

func (e *testEnv) expectAccountByID(id, email, passwordHash string, roles ...string) {
	e.mock.ExpectQuery(findByIDQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			id, email, email, passwordHash, "Ada", nil, entity.DefaultAvatar, nil, testNow, testNow,
		))
	e.expectRoles(id, roles...)
}

func (e *testEnv) expectNoAccountByEmail(canonicalEmail string) {
	e.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs(canonicalEmail).
		WillReturnRows(sqlmock.NewRows(accountColumns))
}

func (e *testEnv) expectRoles(id string, roles ...string) {
	rows := sqlmock.NewRows(roleColumns)
	for _, role := range roles {
		rows.AddRow(role)
	}
	e.mock.ExpectQuery(listAccountRolesQuery).
		WithArgs(id).
		WillReturnRows(rows)
}

func (e *testEnv) verifyExpectations(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

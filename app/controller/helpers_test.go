package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/controller"
	"github.com/vibast-solutions/ms-go-identity/app/entity"
	"github.com/vibast-solutions/ms-go-identity/app/middleware"
	"github.com/vibast-solutions/ms-go-identity/app/repository"
	"github.com/vibast-solutions/ms-go-identity/app/security"
	"github.com/vibast-solutions/ms-go-identity/app/service"
	"github.com/vibast-solutions/ms-go-identity/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	findByCanonicalEmailQuery = `(?s)SELECT id, email, canonical_email, password_hash, first_name, last_name, avatar, last_login_at, created_at, updated_at\s+FROM accounts WHERE canonical_email = \?`
	findByIDQuery             = `(?s)SELECT id, email, canonical_email, password_hash, first_name, last_name, avatar, last_login_at, created_at, updated_at\s+FROM accounts WHERE id = \?`
	listAccountRolesQuery     = `(?s)SELECT role FROM account_roles WHERE account_id = \? ORDER BY role`
	insertAccountQuery        = `(?s)INSERT INTO accounts \(id, email, canonical_email, password_hash, first_name, last_name, avatar, created_at, updated_at\)\s+VALUES`
	insertAccountRoleQuery    = `(?s)INSERT INTO account_roles \(account_id, role\) VALUES \(\?, \?\)`
	updateLastLoginQuery      = `(?s)UPDATE accounts SET last_login_at = \? WHERE id = \?`
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

	testNow = time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
)

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

type nopSender struct{}

func (nopSender) Send(context.Context, string, string, string) error { return nil }

type testEnv struct {
	mock     sqlmock.Sqlmock
	hasher   *security.Argon2idHasher
	accounts *controller.AccountController
	profiles *controller.ProfileController
	resets   *controller.PasswordResetController
}

func newTestEnv(t *testing.T, opts ...service.Option) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
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
	}

	clock := func() time.Time { return testNow }
	opts = append([]service.Option{
		service.WithClock(clock),
		service.WithAsyncRunner(func(task func()) { task() }),
	}, opts...)

	hasher := security.NewArgon2idHasher(security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32})
	tokens := service.NewTokenIssuer(cfg.JWT, clock)
	accountRepo := repository.NewAccountRepository(db)
	resetRepo := repository.NewPasswordResetRepository(db)

	return &testEnv{
		mock:     mock,
		hasher:   hasher,
		accounts: controller.NewAccountController(service.NewAccountService(db, accountRepo, hasher, tokens, cfg, opts...)),
		profiles: controller.NewProfileController(service.NewProfileService(accountRepo, cfg, opts...)),
		resets: controller.NewPasswordResetController(
			service.NewPasswordResetService(db, accountRepo, resetRepo, hasher, nopSender{}, cfg, opts...),
		),
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

func (e *testEnv) expectAccountByEmail(canonicalEmail, id, passwordHash string) {
	e.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs(canonicalEmail).
		WillReturnRows(sqlmock.NewRows(accountColumns).AddRow(
			id, canonicalEmail, canonicalEmail, passwordHash, "Ada", "Lovelace", entity.DefaultAvatar, nil, testNow, testNow,
		))
	e.mock.ExpectQuery(listAccountRolesQuery).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(roleColumns).AddRow(entity.RoleUser))
}

func (e *testEnv) expectNoAccountByEmail(canonicalEmail string) {
	e.mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs(canonicalEmail).
		WillReturnRows(sqlmock.NewRows(accountColumns))
}

func (e *testEnv) verifyExpectations(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func newJSONRequest(t *testing.T, method, path string, body any) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req, httptest.NewRecorder()
}

// authenticated returns a context carrying the claims RequireAuth would attach.
func authenticated(req *http.Request, rec *httptest.ResponseRecorder, accountID string) echo.Context {
	ctx := echo.New().NewContext(req, rec)
	ctx.Set(middleware.ContextKeyClaims, &service.Claims{
		AccountID:        accountID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: accountID},
	})
	return ctx
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("invalid response json: %v (%s)", err, rec.Body.String())
	}
}

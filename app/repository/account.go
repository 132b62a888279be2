package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
)

const accountColumns = `id, email, canonical_email, password_hash, first_name, last_name, avatar, last_login_at, created_at, updated_at`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (id, email, canonical_email, password_hash, first_name, last_name, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		account.ID,
		account.Email,
		account.CanonicalEmail,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Avatar,
		account.CreatedAt,
		account.UpdatedAt,
	)
	return Classify("create account", err)
}

func (r *AccountRepository) AddRole(ctx context.Context, accountID, role string) error {
	query := `INSERT INTO account_roles (account_id, role) VALUES (?, ?)`
	_, err := r.db.ExecContext(ctx, query, accountID, role)
	return Classify("add role", err)
}

func (r *AccountRepository) ListRoles(ctx context.Context, accountID string) ([]string, error) {
	query := `SELECT role FROM account_roles WHERE account_id = ? ORDER BY role`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, Classify("list roles", err)
	}
	defer rows.Close()

	roles := make([]string, 0, 1)
	for rows.Next() {
		var role string
		if err = rows.Scan(&role); err != nil {
			return nil, Classify("list roles", err)
		}
		roles = append(roles, role)
	}
	if err = rows.Err(); err != nil {
		return nil, Classify("list roles", err)
	}

	return roles, nil
}

func (r *AccountRepository) FindByCanonicalEmail(ctx context.Context, canonicalEmail string) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE canonical_email = ?
	`
	return r.findOne(ctx, "find account by email", query, canonicalEmail)
}

func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM accounts WHERE id = ?
	`
	return r.findOne(ctx, "find account by id", query, id)
}

// Search returns accounts whose email, first name or last name contains term,
// case-insensitively, in insertion order. A non-positive limit means no bound.
func (r *AccountRepository) Search(ctx context.Context, term string, limit int) ([]*entity.Account, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	query := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?
		ORDER BY created_at, id
	`
	args := []any{pattern, pattern, pattern}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, Classify("search accounts", err)
	}
	defer rows.Close()

	accounts := make([]*entity.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, Classify("search accounts", err)
		}
		accounts = append(accounts, account)
	}
	if err = rows.Err(); err != nil {
		return nil, Classify("search accounts", err)
	}

	return accounts, nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, passwordHash, updatedAt, id)
	return Classify("update password", err)
}

// ReplacePasswordHash swaps the stored hash only while it still equals
// currentHash, so a concurrent password change always wins. It reports
// whether a row was updated.
func (r *AccountRepository) ReplacePasswordHash(ctx context.Context, id, currentHash, newHash string, updatedAt time.Time) (bool, error) {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ? AND password_hash = ?`
	res, err := r.db.ExecContext(ctx, query, newHash, updatedAt, id, currentHash)
	if err != nil {
		return false, Classify("replace password hash", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, Classify("replace password hash", err)
	}
	return affected == 1, nil
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, account *entity.Account) error {
	query := `
		UPDATE accounts SET
			first_name = ?,
			last_name = ?,
			avatar = ?,
			updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		account.FirstName,
		account.LastName,
		account.Avatar,
		account.UpdatedAt,
		account.ID,
	)
	return Classify("update profile", err)
}

func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, lastLogin time.Time) error {
	query := `UPDATE accounts SET last_login_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, lastLogin, id)
	return Classify("update last login", err)
}

func (r *AccountRepository) findOne(ctx context.Context, op, query string, args ...any) (*entity.Account, error) {
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify(op, err)
	}

	account.Roles, err = r.ListRoles(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	return account, nil
}

func scanAccount(scan rowScanner) (*entity.Account, error) {
	account := &entity.Account{}
	if err := scan(
		&account.ID,
		&account.Email,
		&account.CanonicalEmail,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.Avatar,
		&account.LastLoginAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return account, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

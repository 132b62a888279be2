package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-identity/app/entity"
)

type PasswordResetRepository struct {
	db DBTX
}

func NewPasswordResetRepository(db DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

// Upsert stores reset as the single live token of its account, replacing
// whatever was there before.
func (r *PasswordResetRepository) Upsert(ctx context.Context, reset *entity.PasswordReset) error {
	query := `
		INSERT INTO password_resets (id, account_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			id = VALUES(id),
			token_hash = VALUES(token_hash),
			expires_at = VALUES(expires_at),
			created_at = VALUES(created_at)
	`
	_, err := r.db.ExecContext(ctx, query,
		reset.ID,
		reset.AccountID,
		reset.TokenHash,
		reset.ExpiresAt,
		reset.CreatedAt,
	)
	return Classify("upsert password reset", err)
}

// FindByAccountIDForUpdate locks the live reset row of an account. Only
// meaningful when the repository is bound to a transaction.
func (r *PasswordResetRepository) FindByAccountIDForUpdate(ctx context.Context, accountID string) (*entity.PasswordReset, error) {
	query := `
		SELECT id, account_id, token_hash, expires_at, created_at
		FROM password_resets WHERE account_id = ? FOR UPDATE
	`
	reset := &entity.PasswordReset{}
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(
		&reset.ID,
		&reset.AccountID,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&reset.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("find password reset", err)
	}
	return reset, nil
}

func (r *PasswordResetRepository) Delete(ctx context.Context, id string) (int64, error) {
	query := `DELETE FROM password_resets WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return 0, Classify("delete password reset", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, Classify("delete password reset", err)
	}
	return rows, nil
}

func (r *PasswordResetRepository) DeleteByAccountID(ctx context.Context, accountID string) error {
	query := `DELETE FROM password_resets WHERE account_id = ?`
	_, err := r.db.ExecContext(ctx, query, accountID)
	return Classify("delete password resets by account", err)
}

func (r *PasswordResetRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM password_resets WHERE expires_at <= ?`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, Classify("delete expired password resets", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, Classify("delete expired password resets", err)
	}
	return rows, nil
}

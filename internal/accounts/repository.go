package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/eink-labs/chess-hlss/internal/domain"
)

// PostgresDirectory reads accounts and adversaries from Postgres. The tables
// are maintained out of band by the companion configuration tool.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) EnabledAccounts(ctx context.Context) ([]domain.Account, error) {
	const query = `
		SELECT id, username, token_ref, enabled, is_default, created_at
		FROM accounts
		WHERE enabled
		ORDER BY is_default DESC, created_at ASC`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select accounts: %w", err)
	}
	defer rows.Close()

	var accts []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.Username, &a.TokenRef, &a.Enabled, &a.Default, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accts = append(accts, a)
	}
	return accts, rows.Err()
}

func (d *PostgresDirectory) Account(ctx context.Context, id string) (*domain.Account, error) {
	const query = `
		SELECT id, username, token_ref, enabled, is_default, created_at
		FROM accounts
		WHERE id = $1`

	var a domain.Account
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Username, &a.TokenRef, &a.Enabled, &a.Default, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	return &a, nil
}

func (d *PostgresDirectory) Adversaries(ctx context.Context, accountID string) ([]domain.Adversary, error) {
	const query = `
		SELECT id, account_id, username, COALESCE(friendly_name, '')
		FROM adversaries
		WHERE account_id = $1
		ORDER BY created_at ASC`

	rows, err := d.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("select adversaries: %w", err)
	}
	defer rows.Close()

	var advs []domain.Adversary
	for rows.Next() {
		var a domain.Adversary
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Username, &a.FriendlyName); err != nil {
			return nil, fmt.Errorf("scan adversary: %w", err)
		}
		advs = append(advs, a)
	}
	return advs, rows.Err()
}

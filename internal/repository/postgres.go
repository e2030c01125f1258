package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"slide-master/internal/domain"
)

// pgxQuerier is the subset of *pgxpool.Pool used by PostgresAccounts.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresAccounts stores entitlement accounts in PostgreSQL.
type PostgresAccounts struct {
	db pgxQuerier
}

func NewPostgresAccounts(db pgxQuerier) (*PostgresAccounts, error) {
	if db == nil {
		return nil, errors.New("repository: db must not be nil")
	}
	return &PostgresAccounts{db: db}, nil
}

// Migrate creates the accounts table if it doesn't exist.
func (s *PostgresAccounts) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			requester_id TEXT        PRIMARY KEY,
			balance      INTEGER     NOT NULL DEFAULT 0 CHECK (balance >= 0),
			unlimited    BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("repository: migrate accounts: %w", err)
	}
	return nil
}

func (s *PostgresAccounts) Get(ctx context.Context, requesterID string) (domain.Account, error) {
	acct := domain.Account{RequesterID: requesterID}
	err := s.db.QueryRow(ctx,
		`SELECT balance, unlimited FROM accounts WHERE requester_id = $1`, requesterID,
	).Scan(&acct.Balance, &acct.Unlimited)
	if errors.Is(err, pgx.ErrNoRows) {
		return acct, nil
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("repository: get account: %w", err)
	}
	return acct, nil
}

func (s *PostgresAccounts) ConditionalDecrement(ctx context.Context, requesterID string) (int, bool, error) {
	var remaining int
	err := s.db.QueryRow(ctx,
		`UPDATE accounts SET balance = balance - 1, updated_at = NOW()
		 WHERE requester_id = $1 AND balance > 0
		 RETURNING balance`, requesterID,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		acct, gerr := s.Get(ctx, requesterID)
		if gerr != nil {
			return 0, false, gerr
		}
		return acct.Balance, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("repository: decrement balance: %w", err)
	}
	return remaining, true, nil
}

func (s *PostgresAccounts) Credit(ctx context.Context, requesterID string, amount int) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("repository: Credit: amount must be positive, got %d", amount)
	}
	var balance int
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (requester_id, balance) VALUES ($1, $2)
		 ON CONFLICT (requester_id) DO UPDATE
		 SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()
		 RETURNING balance`, requesterID, amount,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("repository: credit balance: %w", err)
	}
	return balance, nil
}

func (s *PostgresAccounts) Ensure(ctx context.Context, requesterID string, initial int) (domain.Account, bool, error) {
	acct := domain.Account{RequesterID: requesterID}
	err := s.db.QueryRow(ctx,
		`INSERT INTO accounts (requester_id, balance) VALUES ($1, $2)
		 ON CONFLICT (requester_id) DO NOTHING
		 RETURNING balance, unlimited`, requesterID, initial,
	).Scan(&acct.Balance, &acct.Unlimited)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, gerr := s.Get(ctx, requesterID)
		return existing, false, gerr
	}
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("repository: ensure account: %w", err)
	}
	return acct, true, nil
}

func (s *PostgresAccounts) SetUnlimited(ctx context.Context, requesterID string, unlimited bool) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO accounts (requester_id, unlimited) VALUES ($1, $2)
		 ON CONFLICT (requester_id) DO UPDATE
		 SET unlimited = EXCLUDED.unlimited, updated_at = NOW()`, requesterID, unlimited,
	)
	if err != nil {
		return fmt.Errorf("repository: set unlimited: %w", err)
	}
	return nil
}

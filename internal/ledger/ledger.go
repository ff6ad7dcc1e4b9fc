// Package ledger implements CryptoCrash's per-user multi-currency wallet
// store (spec.md §4.3): atomic debit/credit against a user's balance,
// lifetime win/loss aggregates, and first-login wallet seeding.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

// ErrInsufficientBalance is returned by Debit when the wallet is missing
// or its balance is below the requested amount.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Store is the contract the round engine depends on (spec.md §4.3). It is
// defined here, next to its only production implementation, and mocked
// with an in-memory fake in the engine's own tests.
type Store interface {
	Debit(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) error
	Credit(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) error
	RecordSettlement(ctx context.Context, userID string, profit decimal.Decimal, won bool) error
	InitializeWallets(ctx context.Context, userID string) error
	Balance(ctx context.Context, userID string, cur currency.Currency) (decimal.Decimal, error)
	Stats(ctx context.Context, userID string) (UserStats, error)
}

// UserStats bundles a user's wallets and lifetime aggregates for the
// gateway's get_user_stats response (spec.md §6.1).
type UserStats struct {
	Wallets     map[currency.Currency]decimal.Decimal
	TotalBets   int64
	TotalWins   int64
	TotalProfit decimal.Decimal
}

// PostgresStore is the production Store, grounded on
// avvvet-game-service's BalanceStore/BalanceService pair: pgxpool queries
// returning shopspring/decimal values, arithmetic performed in Go rather
// than in SQL. Per-user_id operations are additionally serialized through
// an in-process keyed mutex so a concurrent debit/credit pair for the
// same user can never interleave, even across two goroutines racing the
// same database row.
type PostgresStore struct {
	db    *pgxpool.Pool
	locks *keyedMutex
}

// NewPostgresStore wraps db as a ledger Store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, locks: newKeyedMutex()}
}

// Debit atomically subtracts amount from the user's cur wallet. It fails
// with ErrInsufficientBalance if the wallet does not exist or its balance
// is below amount (spec.md §4.3).
func (s *PostgresStore) Debit(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		var balance decimal.Decimal
		err := tx.QueryRow(ctx, `
			SELECT balance FROM wallets WHERE user_id = $1 AND currency = $2 FOR UPDATE
		`, userID, string(cur)).Scan(&balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return fmt.Errorf("ledger: debit: read balance: %w", err)
		}
		if balance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		_, err = tx.Exec(ctx, `
			UPDATE wallets SET balance = balance - $1, updated_at = now()
			WHERE user_id = $2 AND currency = $3
		`, amount, userID, string(cur))
		if err != nil {
			return fmt.Errorf("ledger: debit: write balance: %w", err)
		}
		return nil
	})
}

// Credit atomically adds amount to the user's cur wallet.
func (s *PostgresStore) Credit(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE wallets SET balance = balance + $1, updated_at = now()
			WHERE user_id = $2 AND currency = $3
		`, amount, userID, string(cur))
		if err != nil {
			return fmt.Errorf("ledger: credit: %w", err)
		}
		return nil
	})
}

// RecordSettlement increments the user's lifetime aggregates: total_bets
// always, total_wins iff won, total_profit by profit (which is negative
// for a loss, per spec.md §3 I5).
func (s *PostgresStore) RecordSettlement(ctx context.Context, userID string, profit decimal.Decimal, won bool) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	winIncrement := 0
	if won {
		winIncrement = 1
	}

	_, err := s.db.Exec(ctx, `
		UPDATE users
		SET total_bets = total_bets + 1,
		    total_wins = total_wins + $1,
		    total_profit = total_profit + $2
		WHERE user_id = $3
	`, winIncrement, profit, userID)
	if err != nil {
		return fmt.Errorf("ledger: record settlement: %w", err)
	}
	return nil
}

// InitializeWallets seeds a brand-new account's wallets at the starting
// balances in currency.InitialWalletBalance (spec.md §4.3). It is
// idempotent: a wallet row that already exists is left untouched.
func (s *PostgresStore) InitializeWallets(ctx context.Context, userID string) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, cur := range currency.All {
			_, err := tx.Exec(ctx, `
				INSERT INTO wallets (user_id, currency, balance, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
				ON CONFLICT (user_id, currency) DO NOTHING
			`, userID, string(cur), currency.InitialWalletBalance[cur])
			if err != nil {
				return fmt.Errorf("ledger: initialize wallets: %s: %w", cur, err)
			}
		}
		return nil
	})
}

// Balance returns the user's current balance for cur. A missing wallet
// reads as zero rather than an error, matching a not-yet-initialized
// account.
func (s *PostgresStore) Balance(ctx context.Context, userID string, cur currency.Currency) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT balance FROM wallets WHERE user_id = $1 AND currency = $2
	`, userID, string(cur)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: balance: %w", err)
	}
	return balance, nil
}

// Stats returns userID's wallet balances across every supported currency
// plus its lifetime bet/win/profit aggregates, read with one query on
// wallets and a second on users.
func (s *PostgresStore) Stats(ctx context.Context, userID string) (UserStats, error) {
	rows, err := s.db.Query(ctx, `SELECT currency, balance FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		return UserStats{}, fmt.Errorf("ledger: stats: wallets: %w", err)
	}
	defer rows.Close()

	wallets := make(map[currency.Currency]decimal.Decimal, len(currency.All))
	for rows.Next() {
		var cur string
		var balance decimal.Decimal
		if err := rows.Scan(&cur, &balance); err != nil {
			return UserStats{}, fmt.Errorf("ledger: stats: scan wallet: %w", err)
		}
		wallets[currency.Currency(cur)] = balance
	}
	if err := rows.Err(); err != nil {
		return UserStats{}, fmt.Errorf("ledger: stats: wallets: %w", err)
	}

	stats := UserStats{Wallets: wallets}
	err = s.db.QueryRow(ctx, `
		SELECT total_bets, total_wins, total_profit FROM users WHERE user_id = $1
	`, userID).Scan(&stats.TotalBets, &stats.TotalWins, &stats.TotalProfit)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return UserStats{}, fmt.Errorf("ledger: stats: totals: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit tx: %w", err)
	}
	return nil
}

// Package round implements the durable store for completed rounds
// (spec.md §4.5): an append-only, idempotent-on-round_id log, indexed for
// "most recent N" queries.
package round

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
	"github.com/harshadakardil/CryptoCrash/internal/game"
)

// Repository is the Postgres-backed implementation of game.Repository,
// grounded on avvvet-game-service's BalanceStore query style generalized
// from a single aggregate query to an upsert-by-round-id and a
// created_at-descending bounded read. Bets are stored as a single JSONB
// array column per round rather than a child table — the round's bets
// are always read and written as a unit, never queried individually.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository wraps db as a round.Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

type betRow struct {
	UserID       string           `json:"user_id"`
	Username     string           `json:"username"`
	USDAmount    decimal.Decimal  `json:"usd_amount"`
	Currency     string           `json:"currency"`
	PriceAtTime  decimal.Decimal  `json:"price_at_time"`
	CryptoAmount decimal.Decimal  `json:"crypto_amount"`
	AutoCashOut  *decimal.Decimal `json:"auto_cash_out,omitempty"`
	CashedOut    bool             `json:"cashed_out"`
	CashedOutAt  decimal.Decimal  `json:"cashed_out_at"`
	PayoutUSD    decimal.Decimal  `json:"payout_usd"`
	ProfitUSD    decimal.Decimal  `json:"profit_usd"`
	PlacedAt     int64            `json:"placed_at_unix_ms"`
}

func toBetRows(bets []game.Bet) []betRow {
	rows := make([]betRow, len(bets))
	for i, b := range bets {
		rows[i] = betRow{
			UserID:       b.UserID,
			Username:     b.Username,
			USDAmount:    b.USDAmount,
			Currency:     string(b.Currency),
			PriceAtTime:  b.PriceAtTime,
			CryptoAmount: b.CryptoAmount,
			AutoCashOut:  b.AutoCashOut,
			CashedOut:    b.CashedOut,
			CashedOutAt:  b.CashedOutAt,
			PayoutUSD:    b.PayoutUSD,
			ProfitUSD:    b.ProfitUSD,
			PlacedAt:     b.PlacedAt.UnixMilli(),
		}
	}
	return rows
}

func fromBetRows(rows []betRow) []game.Bet {
	bets := make([]game.Bet, len(rows))
	for i, r := range rows {
		bets[i] = game.Bet{
			UserID:       r.UserID,
			Username:     r.Username,
			USDAmount:    r.USDAmount,
			Currency:     currency.Currency(r.Currency),
			PriceAtTime:  r.PriceAtTime,
			CryptoAmount: r.CryptoAmount,
			AutoCashOut:  r.AutoCashOut,
			CashedOut:    r.CashedOut,
			CashedOutAt:  r.CashedOutAt,
			PayoutUSD:    r.PayoutUSD,
			ProfitUSD:    r.ProfitUSD,
		}
	}
	return bets
}

// Save upserts a round by round_id (spec.md §4.5 "idempotent on
// round_id"). The engine calls this twice per round: with the WAITING
// snapshot at creation, when StartedAt and CrashedAt are still zero
// values, and again with the crashed round, which overwrites that row.
func (r *Repository) Save(ctx context.Context, round game.Round) error {
	betsJSON, err := json.Marshal(toBetRows(round.Bets))
	if err != nil {
		return fmt.Errorf("round: marshal bets: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO rounds (
			round_id, round_number, seed, hash, crash_point, status,
			created_at, started_at, crashed_at, current_multiplier, bets
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (round_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			crashed_at = EXCLUDED.crashed_at,
			current_multiplier = EXCLUDED.current_multiplier,
			bets = EXCLUDED.bets
	`,
		round.RoundID, round.RoundNumber, round.Seed, round.Hash, round.CrashPoint, string(round.Status),
		round.CreatedAt, round.StartedAt, round.CrashedAt, round.CurrentMultiplier, betsJSON,
	)
	if err != nil {
		return fmt.Errorf("round: save %s: %w", round.RoundID, err)
	}
	return nil
}

// Recent returns the last limit rounds, newest first, regardless of
// status (spec.md §4.5 recent()).
func (r *Repository) Recent(ctx context.Context, limit int) ([]game.Round, error) {
	rows, err := r.db.Query(ctx, `
		SELECT round_id, round_number, seed, hash, crash_point, status,
		       created_at, started_at, crashed_at, current_multiplier, bets
		FROM rounds
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("round: recent: %w", err)
	}
	defer rows.Close()

	var out []game.Round
	for rows.Next() {
		var (
			rnd      game.Round
			status   string
			betsJSON []byte
		)
		if err := rows.Scan(&rnd.RoundID, &rnd.RoundNumber, &rnd.Seed, &rnd.Hash, &rnd.CrashPoint, &status,
			&rnd.CreatedAt, &rnd.StartedAt, &rnd.CrashedAt, &rnd.CurrentMultiplier, &betsJSON); err != nil {
			return nil, fmt.Errorf("round: scan: %w", err)
		}
		rnd.Status = game.Status(status)

		var betRows []betRow
		if err := json.Unmarshal(betsJSON, &betRows); err != nil {
			return nil, fmt.Errorf("round: unmarshal bets for %s: %w", rnd.RoundID, err)
		}
		rnd.Bets = fromBetRows(betRows)

		out = append(out, rnd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("round: recent: %w", err)
	}
	return out, nil
}

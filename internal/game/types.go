package game

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

// Status is a round's position in the WAITING -> RUNNING -> CRASHED
// lifecycle (spec.md §3).
type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusRunning  Status = "RUNNING"
	StatusCrashed  Status = "CRASHED"
	StatusDegraded Status = "DEGRADED" // crash-settlement persistence never succeeded (spec.md §7)
)

// Bet is one player's stake in a round, generalized from the teacher's
// BetRequest/ActiveBet pair into a single durable record (spec.md §3).
type Bet struct {
	UserID       string
	Username     string
	USDAmount    decimal.Decimal
	Currency     currency.Currency
	PriceAtTime  decimal.Decimal
	CryptoAmount decimal.Decimal
	AutoCashOut  *decimal.Decimal // nil if not set

	CashedOut   bool
	CashedOutAt decimal.Decimal // multiplier at which it cashed out; zero if CashedOut is false
	PayoutUSD   decimal.Decimal
	ProfitUSD   decimal.Decimal

	PlacedAt time.Time
}

// Round is the engine's unit of work: one commitment, one tick loop, one
// ordered sequence of bets (spec.md §3).
type Round struct {
	RoundID     string
	RoundNumber int64

	Seed string // secret until CRASHED
	Hash string // published at creation

	CrashPoint decimal.Decimal

	Status Status

	CreatedAt time.Time
	StartedAt time.Time
	CrashedAt time.Time

	CurrentMultiplier decimal.Decimal

	Bets []Bet
}

// Snapshot returns a value copy of the round safe to hand to a caller
// outside the engine's exclusive section — the Bets slice is copied so a
// reader can't observe a later in-place append (spec.md §5 "iteration for
// broadcast takes a snapshot").
func (r *Round) Snapshot() Round {
	cp := *r
	cp.Bets = make([]Bet, len(r.Bets))
	copy(cp.Bets, r.Bets)
	return cp
}

// BetIndex returns the index of userID's most recent uncashed bet in the
// round, or -1 if the user has no such bet.
func (r *Round) BetIndex(userID string) int {
	for i := len(r.Bets) - 1; i >= 0; i-- {
		if r.Bets[i].UserID == userID && !r.Bets[i].CashedOut {
			return i
		}
	}
	return -1
}


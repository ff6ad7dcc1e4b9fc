package game

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventSink is everything the engine needs from a transport layer: a
// place to publish outgoing events. The engine holds no socket
// references of its own — it only knows about this interface, injected
// at construction (spec.md §9, the required deviation from the teacher's
// direct `*Hub` field).
type EventSink interface {
	// Publish fans an event out to every connected client.
	Publish(event string, payload interface{})
	// PublishTo sends an event to a single user's sockets only.
	PublishTo(userID string, event string, payload interface{})
}

// NewRoundPayload is the new_round broadcast (spec.md §6.1).
type NewRoundPayload struct {
	RoundID string `json:"round_id"`
	Hash    string `json:"hash"`
	Status  Status `json:"status"`
}

// GameStartedPayload is the game_started broadcast.
type GameStartedPayload struct {
	RoundID   string    `json:"round_id"`
	StartedAt time.Time `json:"started_at"`
}

// MultiplierUpdatePayload is the multiplier_update broadcast.
type MultiplierUpdatePayload struct {
	RoundID    string          `json:"round_id"`
	Multiplier decimal.Decimal `json:"multiplier"`
	Timestamp  time.Time       `json:"timestamp"`
}

// BetPlacedPayload is the bet_placed broadcast.
type BetPlacedPayload struct {
	RoundID     string           `json:"round_id"`
	Username    string           `json:"username"`
	USDAmount   decimal.Decimal  `json:"usd_amount"`
	Currency    string           `json:"currency"`
	AutoCashOut *decimal.Decimal `json:"auto_cash_out,omitempty"`
}

// PlayerCashoutPayload is the player_cashout broadcast.
type PlayerCashoutPayload struct {
	RoundID    string          `json:"round_id"`
	Username   string          `json:"username"`
	Multiplier decimal.Decimal `json:"multiplier"`
	USDPayout  decimal.Decimal `json:"usd_payout"`
	Profit     decimal.Decimal `json:"profit"`
	IsAuto     bool            `json:"is_auto"`
}

// GameCrashedPayload is the game_crashed broadcast. Seed is revealed only
// here, once the round is over (spec.md §6.1 "seed revealed on crash").
type GameCrashedPayload struct {
	RoundID    string          `json:"round_id"`
	CrashPoint decimal.Decimal `json:"crash_point"`
	Seed       string          `json:"seed"`
	Timestamp  time.Time       `json:"timestamp"`
}

// RoundAbortedPayload is broadcast when saving a round fails: either the
// WAITING snapshot at creation, which scraps the round before betting
// opens, or the completed round after every retry (spec.md §4.4 "Failure
// semantics").
type RoundAbortedPayload struct {
	RoundID string `json:"round_id"`
	Reason  string `json:"reason"`
}

// GameStatePayload is the game_state snapshot sent to a newly connected
// socket (spec.md §6.1 "originator only on connect").
type GameStatePayload struct {
	RoundID           string          `json:"round_id"`
	Hash              string          `json:"hash"`
	Status            Status          `json:"status"`
	CurrentMultiplier decimal.Decimal `json:"current_multiplier"`
}

// ErrorPayload is the error event sent to the originating socket only.
type ErrorPayload struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

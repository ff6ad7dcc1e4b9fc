// Package fairness implements CryptoCrash's provably-fair commitment
// scheme: a seed is committed via its SHA-256 hash before betting closes,
// and the round's crash multiplier is derived deterministically from that
// seed and the round number.
//
// Every function here is pure — no I/O, no package-level mutable state —
// so the same (seed, round number) always reproduces the same crash point,
// and any client can independently verify a completed round.
package fairness

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MinMultiplier is the lowest a crash point can ever be.
	MinMultiplier = 1.01
	// MaxMultiplier is the highest a crash point can ever be.
	MaxMultiplier = 1000.00
	// DefaultHouseEdge is used when the caller doesn't override it via
	// the HOUSE_EDGE environment variable.
	DefaultHouseEdge = 0.04
)

// Proof is everything a round commits to before betting closes, plus the
// crash point it secretly determines.
type Proof struct {
	RoundID     string
	RoundNumber int64
	Seed        string // hex-encoded, secret until crash
	Hash        string // hex-encoded SHA-256(Seed), published immediately
	CrashPoint  decimal.Decimal
}

// NewRound commits a fresh seed for roundNumber and derives its crash
// point under houseEdge. The seed is 32 cryptographically random bytes,
// hex-encoded; the hash is published immediately, the seed stays secret
// until the round crashes.
func NewRound(roundNumber int64, houseEdge float64) (Proof, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return Proof{}, fmt.Errorf("fairness: generate seed: %w", err)
	}
	seed := hex.EncodeToString(raw)

	return Proof{
		RoundID:     newRoundID(roundNumber),
		RoundNumber: roundNumber,
		Seed:        seed,
		Hash:        HashCommitment(seed),
		CrashPoint:  CrashPoint(seed, roundNumber, houseEdge),
	}, nil
}

// HashCommitment returns the hex-encoded SHA-256 of a hex-encoded seed.
func HashCommitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// CrashPoint derives the round's crash multiplier from (seed, roundNumber)
// under houseEdge, per spec.md §4.1:
//
//	H = SHA256(seed ‖ ascii(round_number))
//	x = first 8 hex chars of H, parsed as an unsigned 32-bit integer
//	M = 2^32 - 1
//	r = (M - x) / (M - x*e)
//
// r is then clamped to [MinMultiplier, MaxMultiplier] and truncated toward
// zero at two fractional digits. This formula is preserved exactly as
// specified rather than replaced with the conventional crash-curve formula
// (spec.md §9, open question #1).
func CrashPoint(seed string, roundNumber int64, houseEdge float64) decimal.Decimal {
	h := sha256.Sum256([]byte(seed + strconv.FormatInt(roundNumber, 10)))
	hexHash := hex.EncodeToString(h[:])

	x, _ := strconv.ParseUint(hexHash[:8], 16, 32)

	const m = float64(math.MaxUint32) // 2^32 - 1
	xf := float64(x)

	r := (m - xf) / (m - xf*houseEdge)

	if r < MinMultiplier {
		r = MinMultiplier
	}
	if r > MaxMultiplier {
		r = MaxMultiplier
	}

	truncated := math.Trunc(r*100) / 100
	return decimal.NewFromFloat(truncated)
}

// Verify recomputes the hash and crash point for (seed, roundNumber) and
// reports whether they match the published hash and the claimed crash
// point within 0.01. It never panics on malformed input — a bad seed or
// hash just fails verification with a reason.
func Verify(seed, hash string, roundNumber int64, claimedCrashPoint decimal.Decimal, houseEdge float64) (valid bool, reason string) {
	wantHash := HashCommitment(seed)
	if wantHash != hash {
		return false, "hash does not match SHA256(seed)"
	}

	recomputed := CrashPoint(seed, roundNumber, houseEdge)
	diff := recomputed.Sub(claimedCrashPoint).Abs()
	if diff.GreaterThan(decimal.NewFromFloat(0.01)) {
		return false, fmt.Sprintf("crash point mismatch: recomputed %s, claimed %s", recomputed, claimedCrashPoint)
	}

	return true, ""
}

// newRoundID concatenates the current epoch millis with the round number,
// guaranteeing uniqueness across rounds started in the same process.
func newRoundID(roundNumber int64) string {
	return fmt.Sprintf("%d%d", time.Now().UnixMilli(), roundNumber)
}

package fairness

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestCrashPoint_Deterministic(t *testing.T) {
	seed := "deterministic_test_seed"
	var roundNumber int64 = 42

	r1 := CrashPoint(seed, roundNumber, DefaultHouseEdge)
	r2 := CrashPoint(seed, roundNumber, DefaultHouseEdge)
	r3 := CrashPoint(seed, roundNumber, DefaultHouseEdge)

	if !r1.Equal(r2) || !r2.Equal(r3) {
		t.Fatalf("CrashPoint() is not deterministic: got %v, %v, %v", r1, r2, r3)
	}
}

func TestCrashPoint_Bounds(t *testing.T) {
	min := decimal.NewFromFloat(MinMultiplier)
	max := decimal.NewFromFloat(MaxMultiplier)

	for nonce := int64(0); nonce < 200; nonce++ {
		got := CrashPoint("some_seed", nonce, DefaultHouseEdge)
		if got.LessThan(min) {
			t.Errorf("CrashPoint(%d) = %v, want >= %v", nonce, got, min)
		}
		if got.GreaterThan(max) {
			t.Errorf("CrashPoint(%d) = %v, want <= %v", nonce, got, max)
		}
	}
}

func TestCrashPoint_GoldenSeedAllZeros(t *testing.T) {
	// S5/S1 fairness challenge: seed hex "00"*32, round_number 1.
	seed := strings.Repeat("00", 32)
	got := CrashPoint(seed, 1, DefaultHouseEdge)

	if got.LessThan(decimal.NewFromFloat(MinMultiplier)) || got.GreaterThan(decimal.NewFromFloat(MaxMultiplier)) {
		t.Fatalf("golden crash point out of bounds: %v", got)
	}

	valid, reason := Verify(seed, HashCommitment(seed), 1, got, DefaultHouseEdge)
	if !valid {
		t.Fatalf("golden crash point failed self-verification: %s", reason)
	}
}

func TestHashCommitment(t *testing.T) {
	seed := "test_seed_12345"

	h1 := HashCommitment(seed)
	h2 := HashCommitment(seed)

	if h1 != h2 {
		t.Error("HashCommitment() is not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("HashCommitment() length = %d, want 64", len(h1))
	}
}

func TestNewRound(t *testing.T) {
	p1, err := NewRound(1, DefaultHouseEdge)
	if err != nil {
		t.Fatalf("NewRound() error: %v", err)
	}
	p2, err := NewRound(1, DefaultHouseEdge)
	if err != nil {
		t.Fatalf("NewRound() error: %v", err)
	}

	if p1.Seed == p2.Seed {
		t.Error("NewRound() produced duplicate seeds")
	}
	if len(p1.Seed) != 64 {
		t.Errorf("seed length = %d, want 64", len(p1.Seed))
	}
	if p1.Hash != HashCommitment(p1.Seed) {
		t.Error("hash does not match SHA256(seed)")
	}
	if p1.RoundID == p2.RoundID {
		t.Error("NewRound() produced duplicate round ids")
	}
}

func TestVerify(t *testing.T) {
	seed := "verification_test_seed"
	var roundNumber int64 = 100
	hash := HashCommitment(seed)
	actual := CrashPoint(seed, roundNumber, DefaultHouseEdge)

	tests := []struct {
		name       string
		seed, hash string
		roundNum   int64
		claimed    decimal.Decimal
		want       bool
	}{
		{"valid", seed, hash, roundNumber, actual, true},
		{"claimed far off", seed, hash, roundNumber, actual.Add(decimal.NewFromInt(10)), false},
		{"wrong seed", "wrong_seed", hash, roundNumber, actual, false},
		{"wrong hash", seed, HashCommitment("other"), roundNumber, actual, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := Verify(tt.seed, tt.hash, tt.roundNum, tt.claimed, DefaultHouseEdge)
			if got != tt.want {
				t.Errorf("Verify() = %v (%s), want %v", got, reason, tt.want)
			}
		})
	}
}

func TestCrashPoint_TwoFractionalDigits(t *testing.T) {
	for nonce := int64(0); nonce < 50; nonce++ {
		got := CrashPoint("precision_seed", nonce, DefaultHouseEdge)
		scaled := got.Mul(decimal.NewFromInt(100))
		if !scaled.Equal(scaled.Truncate(0)) {
			t.Errorf("CrashPoint(%d) = %v is not truncated to two fractional digits", nonce, got)
		}
	}
}

func BenchmarkCrashPoint(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CrashPoint("benchmark_seed", int64(i), DefaultHouseEdge)
	}
}

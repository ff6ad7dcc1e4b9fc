package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

func TestMemoryStore_InitializeWallets(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.InitializeWallets(ctx, "u1"); err != nil {
		t.Fatalf("InitializeWallets() error: %v", err)
	}

	for cur, want := range currency.InitialWalletBalance {
		got, err := s.Balance(ctx, "u1", cur)
		if err != nil {
			t.Fatalf("Balance(%s) error: %v", cur, err)
		}
		if !got.Equal(want) {
			t.Errorf("Balance(%s) = %v, want %v", cur, got, want)
		}
	}
}

func TestMemoryStore_InitializeWallets_Idempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.InitializeWallets(ctx, "u1")
	_ = s.Debit(ctx, "u1", currency.BTC, decimal.NewFromFloat(0.0005))
	_ = s.InitializeWallets(ctx, "u1")

	got, _ := s.Balance(ctx, "u1", currency.BTC)
	want := currency.InitialWalletBalance[currency.BTC].Sub(decimal.NewFromFloat(0.0005))
	if !got.Equal(want) {
		t.Errorf("re-initializing clobbered balance: got %v, want %v", got, want)
	}
}

func TestMemoryStore_Debit_InsufficientBalance(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.InitializeWallets(ctx, "u1")

	huge := currency.InitialWalletBalance[currency.BTC].Add(decimal.NewFromInt(1))
	err := s.Debit(ctx, "u1", currency.BTC, huge)
	if err != ErrInsufficientBalance {
		t.Fatalf("Debit() error = %v, want ErrInsufficientBalance", err)
	}
}

func TestMemoryStore_Debit_MissingWallet(t *testing.T) {
	s := NewMemoryStore()
	err := s.Debit(context.Background(), "ghost", currency.BTC, decimal.NewFromFloat(0.001))
	if err != ErrInsufficientBalance {
		t.Fatalf("Debit() on missing wallet error = %v, want ErrInsufficientBalance", err)
	}
}

func TestMemoryStore_DebitCreditRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.InitializeWallets(ctx, "u1")

	start, _ := s.Balance(ctx, "u1", currency.ETH)
	amount := decimal.NewFromFloat(0.002)

	if err := s.Debit(ctx, "u1", currency.ETH, amount); err != nil {
		t.Fatalf("Debit() error: %v", err)
	}
	afterDebit, _ := s.Balance(ctx, "u1", currency.ETH)
	if !afterDebit.Equal(start.Sub(amount)) {
		t.Fatalf("after debit = %v, want %v", afterDebit, start.Sub(amount))
	}

	if err := s.Credit(ctx, "u1", currency.ETH, amount); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	afterCredit, _ := s.Balance(ctx, "u1", currency.ETH)
	if !afterCredit.Equal(start) {
		t.Fatalf("after credit = %v, want %v", afterCredit, start)
	}
}

func TestMemoryStore_RecordSettlement(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.RecordSettlement(ctx, "u1", decimal.NewFromInt(-5), false)
	_ = s.RecordSettlement(ctx, "u1", decimal.NewFromInt(10), true)

	bets, wins, profit := s.Totals("u1")
	if bets != 2 {
		t.Errorf("total_bets = %d, want 2", bets)
	}
	if wins != 1 {
		t.Errorf("total_wins = %d, want 1", wins)
	}
	if !profit.Equal(decimal.NewFromInt(5)) {
		t.Errorf("total_profit = %v, want 5", profit)
	}
}

func TestMemoryStore_Stats_BundlesWalletsAndTotals(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.InitializeWallets(ctx, "u1")
	_ = s.RecordSettlement(ctx, "u1", decimal.NewFromInt(-5), false)
	_ = s.RecordSettlement(ctx, "u1", decimal.NewFromInt(10), true)

	stats, err := s.Stats(ctx, "u1")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalBets != 2 || stats.TotalWins != 1 {
		t.Errorf("totals = (%d, %d), want (2, 1)", stats.TotalBets, stats.TotalWins)
	}
	if !stats.TotalProfit.Equal(decimal.NewFromInt(5)) {
		t.Errorf("total_profit = %v, want 5", stats.TotalProfit)
	}
	if len(stats.Wallets) != len(currency.All) {
		t.Errorf("wallets has %d entries, want %d", len(stats.Wallets), len(currency.All))
	}
}

func TestMemoryStore_Stats_UnknownUserReturnsZeroTotals(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	stats, err := s.Stats(ctx, "ghost")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if stats.TotalBets != 0 || stats.TotalWins != 0 || !stats.TotalProfit.IsZero() {
		t.Errorf("expected zero totals for unknown user, got %+v", stats)
	}
}

func TestMemoryStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.InitializeWallets(ctx, "u1")

	balance, _ := s.Balance(ctx, "u1", currency.DOT)
	unit := balance.Div(decimal.NewFromInt(10))

	var wg sync.WaitGroup
	var succeeded sync.Map
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Debit(ctx, "u1", currency.DOT, unit); err == nil {
				succeeded.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	count := 0
	succeeded.Range(func(_, _ interface{}) bool { count++; return true })
	if count != 10 {
		t.Fatalf("expected exactly 10 successful debits to exhaust balance, got %d", count)
	}

	final, _ := s.Balance(ctx, "u1", currency.DOT)
	if final.IsNegative() {
		t.Fatalf("balance went negative: %v", final)
	}
}

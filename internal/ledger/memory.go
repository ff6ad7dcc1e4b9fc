package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

// MemoryStore is an in-process Store used by the round engine's tests and
// by local development without a database. It keeps the same
// keyed-mutex-per-user serialization guarantee as PostgresStore.
type MemoryStore struct {
	mu      sync.Mutex
	wallets map[string]map[currency.Currency]decimal.Decimal
	totals  map[string]userTotals
	locks   *keyedMutex
}

type userTotals struct {
	totalBets   int64
	totalWins   int64
	totalProfit decimal.Decimal
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets: make(map[string]map[currency.Currency]decimal.Decimal),
		totals:  make(map[string]userTotals),
		locks:   newKeyedMutex(),
	}
}

func (s *MemoryStore) Debit(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[userID]
	if !ok {
		return ErrInsufficientBalance
	}
	balance, ok := wallet[cur]
	if !ok || balance.LessThan(amount) {
		return ErrInsufficientBalance
	}
	wallet[cur] = balance.Sub(amount)
	return nil
}

func (s *MemoryStore) Credit(ctx context.Context, userID string, cur currency.Currency, amount decimal.Decimal) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[userID]
	if !ok {
		wallet = make(map[currency.Currency]decimal.Decimal)
		s.wallets[userID] = wallet
	}
	wallet[cur] = wallet[cur].Add(amount)
	return nil
}

func (s *MemoryStore) RecordSettlement(ctx context.Context, userID string, profit decimal.Decimal, won bool) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.totals[userID]
	t.totalBets++
	if won {
		t.totalWins++
	}
	t.totalProfit = t.totalProfit.Add(profit)
	s.totals[userID] = t
	return nil
}

func (s *MemoryStore) InitializeWallets(ctx context.Context, userID string) error {
	lock := s.locks.lock(userID)
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[userID]; ok {
		return nil
	}
	wallet := make(map[currency.Currency]decimal.Decimal, len(currency.All))
	for cur, amount := range currency.InitialWalletBalance {
		wallet[cur] = amount
	}
	s.wallets[userID] = wallet
	return nil
}

func (s *MemoryStore) Balance(ctx context.Context, userID string, cur currency.Currency) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[userID]
	if !ok {
		return decimal.Zero, nil
	}
	return wallet[cur], nil
}

func (s *MemoryStore) Stats(ctx context.Context, userID string) (UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallets := make(map[currency.Currency]decimal.Decimal, len(currency.All))
	for cur, balance := range s.wallets[userID] {
		wallets[cur] = balance
	}

	t := s.totals[userID]
	return UserStats{
		Wallets:     wallets,
		TotalBets:   t.totalBets,
		TotalWins:   t.totalWins,
		TotalProfit: t.totalProfit,
	}, nil
}

// Totals exposes the lifetime aggregates recorded via RecordSettlement,
// for assertions in tests.
func (s *MemoryStore) Totals(userID string) (totalBets, totalWins int64, totalProfit decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.totals[userID]
	return t.totalBets, t.totalWins, t.totalProfit
}

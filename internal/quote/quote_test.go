package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

type fakeSource struct {
	mu       sync.Mutex
	prices   map[currency.Currency]decimal.Decimal
	err      error
	fetchLog []currency.Currency
}

func (f *fakeSource) Fetch(ctx context.Context, currencies []currency.Currency) (map[currency.Currency]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetchLog = append(f.fetchLog, currencies...)
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[currency.Currency]decimal.Decimal)
	for _, c := range currencies {
		if p, ok := f.prices[c]; ok {
			out[c] = p
		}
	}
	return out, nil
}

func TestCache_Get_FetchesOnMiss(t *testing.T) {
	src := &fakeSource{prices: map[currency.Currency]decimal.Decimal{
		currency.BTC: decimal.NewFromInt(50000),
	}}
	c := New(src, 10*time.Second, time.Second)

	got := c.Get(context.Background(), currency.BTC)
	if !got.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("Get() = %v, want 50000", got)
	}
	if len(src.fetchLog) != 1 {
		t.Fatalf("expected 1 fetch, got %d", len(src.fetchLog))
	}
}

func TestCache_Get_ServesFromCacheWithinTTL(t *testing.T) {
	src := &fakeSource{prices: map[currency.Currency]decimal.Decimal{
		currency.ETH: decimal.NewFromInt(3000),
	}}
	c := New(src, time.Minute, time.Second)

	c.Get(context.Background(), currency.ETH)
	c.Get(context.Background(), currency.ETH)
	c.Get(context.Background(), currency.ETH)

	if len(src.fetchLog) != 1 {
		t.Fatalf("expected exactly 1 fetch within TTL, got %d", len(src.fetchLog))
	}
}

func TestCache_Get_RefreshesAfterTTL(t *testing.T) {
	src := &fakeSource{prices: map[currency.Currency]decimal.Decimal{
		currency.LTC: decimal.NewFromInt(100),
	}}
	c := New(src, 10*time.Millisecond, time.Second)

	c.Get(context.Background(), currency.LTC)
	time.Sleep(20 * time.Millisecond)
	c.Get(context.Background(), currency.LTC)

	if len(src.fetchLog) != 2 {
		t.Fatalf("expected 2 fetches after TTL expiry, got %d", len(src.fetchLog))
	}
}

func TestCache_Get_FallsBackToStaleOnFetchFailure(t *testing.T) {
	src := &fakeSource{prices: map[currency.Currency]decimal.Decimal{
		currency.ADA: decimal.NewFromFloat(0.6),
	}}
	c := New(src, 10*time.Millisecond, time.Second)

	got := c.Get(context.Background(), currency.ADA)
	if !got.Equal(decimal.NewFromFloat(0.6)) {
		t.Fatalf("Get() = %v, want 0.6", got)
	}

	time.Sleep(20 * time.Millisecond)
	src.err = errors.New("upstream down")

	got = c.Get(context.Background(), currency.ADA)
	if !got.Equal(decimal.NewFromFloat(0.6)) {
		t.Fatalf("Get() after failure = %v, want stale 0.6", got)
	}
}

func TestCache_Get_FallsBackToHardcodedConstant(t *testing.T) {
	src := &fakeSource{err: errors.New("upstream down")}
	c := New(src, time.Second, time.Second)

	got := c.Get(context.Background(), currency.DOT)
	if !got.Equal(currency.Fallback[currency.DOT]) {
		t.Fatalf("Get() = %v, want fallback %v", got, currency.Fallback[currency.DOT])
	}
}

func TestCache_GetAll_FetchesAllCurrenciesInParallel(t *testing.T) {
	src := &fakeSource{prices: map[currency.Currency]decimal.Decimal{
		currency.BTC: decimal.NewFromInt(1),
		currency.ETH: decimal.NewFromInt(2),
		currency.LTC: decimal.NewFromInt(3),
		currency.ADA: decimal.NewFromInt(4),
		currency.DOT: decimal.NewFromInt(5),
	}}
	c := New(src, time.Second, time.Second)

	prices := c.GetAll(context.Background())
	if len(prices) != len(currency.All) {
		t.Fatalf("GetAll() returned %d prices, want %d", len(prices), len(currency.All))
	}
	for _, cur := range currency.All {
		if _, ok := prices[cur]; !ok {
			t.Errorf("GetAll() missing currency %s", cur)
		}
	}
}

func TestCache_Reset(t *testing.T) {
	src := &fakeSource{prices: map[currency.Currency]decimal.Decimal{currency.BTC: decimal.NewFromInt(1)}}
	c := New(src, time.Minute, time.Second)

	c.Get(context.Background(), currency.BTC)
	c.Reset()
	c.Get(context.Background(), currency.BTC)

	if len(src.fetchLog) != 2 {
		t.Fatalf("expected a fresh fetch after Reset, got %d total fetches", len(src.fetchLog))
	}
}

func TestUsdToCryptoAndBack(t *testing.T) {
	usd := decimal.NewFromInt(10)
	price := decimal.NewFromInt(100)

	crypto := UsdToCrypto(usd, price)
	if !crypto.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("UsdToCrypto() = %v, want 0.1", crypto)
	}

	back := CryptoToUsd(crypto, price)
	if !back.Equal(usd) {
		t.Fatalf("CryptoToUsd() = %v, want %v", back, usd)
	}
}

func TestUsdToCrypto_ZeroPrice(t *testing.T) {
	got := UsdToCrypto(decimal.NewFromInt(10), decimal.Zero)
	if !got.IsZero() {
		t.Fatalf("UsdToCrypto() with zero price = %v, want 0", got)
	}
}

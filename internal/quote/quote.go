// Package quote implements CryptoCrash's short-TTL fiat price cache
// (spec.md §4.2): a per-currency memoized fetcher with stale-fallback and
// hard-coded last-resort values, so a flaky upstream quote feed never
// blocks a bet or a cashout.
package quote

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

var errNotReturned = errors.New("source did not return a price for currency")

// Source fetches live USD prices for the requested currencies from an
// external feed (spec.md §6.2 "Quote source").
type Source interface {
	Fetch(ctx context.Context, currencies []currency.Currency) (map[currency.Currency]decimal.Decimal, error)
}

type entry struct {
	price     decimal.Decimal
	fetchedAt time.Time
}

// Cache is a process-wide, lock-guarded mapping currency -> {price,
// fetched_at}. Readers may overlap; writes are exclusive (spec.md §5).
type Cache struct {
	mu      sync.RWMutex
	entries map[currency.Currency]entry

	source  Source
	ttl     time.Duration
	timeout time.Duration
}

// New constructs a quote cache backed by source, refreshing an entry once
// it is older than ttl and bounding each fetch attempt at timeout.
func New(source Source, ttl, timeout time.Duration) *Cache {
	return &Cache{
		entries: make(map[currency.Currency]entry),
		source:  source,
		ttl:     ttl,
		timeout: timeout,
	}
}

// Get returns the USD price for c, refreshing it from the source if the
// cached entry is missing or stale. On fetch failure it falls through to
// a stale cached entry if one exists, and finally to the hard-coded
// fallback constant — this call never fails (spec.md §4.2, §7
// QUOTE_UNAVAILABLE "degrades to fallback; never surfaced").
func (c *Cache) Get(ctx context.Context, c2 currency.Currency) decimal.Decimal {
	if price, ok := c.fresh(c2); ok {
		return price
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prices, err := c.source.Fetch(fetchCtx, []currency.Currency{c2})
	if err == nil {
		if price, ok := prices[c2]; ok {
			c.store(c2, price)
			return price
		}
		err = errNotReturned
	}

	log.Printf("[QUOTE] fetch failed for %s: %v", c2, err)

	if price, ok := c.stale(c2); ok {
		return price
	}

	return currency.Fallback[c2]
}

// GetAll fetches the current USD price for every supported currency in
// parallel. Individual failures degrade per-currency to the stale or
// fallback value; GetAll itself never fails.
func (c *Cache) GetAll(ctx context.Context) map[currency.Currency]decimal.Decimal {
	out := make(map[currency.Currency]decimal.Decimal, len(currency.All))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, cur := range currency.All {
		wg.Add(1)
		go func(cur currency.Currency) {
			defer wg.Done()
			price := c.Get(ctx, cur)
			mu.Lock()
			out[cur] = price
			mu.Unlock()
		}(cur)
	}

	wg.Wait()
	return out
}

func (c *Cache) fresh(cur currency.Currency) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[cur]
	if !ok || time.Since(e.fetchedAt) >= c.ttl {
		return decimal.Zero, false
	}
	return e.price, true
}

func (c *Cache) stale(cur currency.Currency) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[cur]
	return e.price, ok
}

func (c *Cache) store(cur currency.Currency, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cur] = entry{price: price, fetchedAt: time.Now()}
}

// Reset clears every cached entry, making the cache fully resettable for
// tests (spec.md §9 "Global state... treat as injected at engine
// construction for testability").
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[currency.Currency]entry)
}

// UsdToCrypto converts a USD amount into the equivalent crypto amount at
// the given price.
func UsdToCrypto(usd, price decimal.Decimal) decimal.Decimal {
	if price.IsZero() {
		return decimal.Zero
	}
	return usd.Div(price)
}

// CryptoToUsd converts a crypto amount into USD at the given price.
func CryptoToUsd(crypto, price decimal.Decimal) decimal.Decimal {
	return crypto.Mul(price)
}

package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harshadakardil/CryptoCrash/internal/currency"
)

// HTTPSource fetches prices from a CoinGecko-shaped simple-price endpoint:
// GET {baseURL}?ids=bitcoin,ethereum&vs_currencies=usd returning
// {"bitcoin": {"usd": 45123.4}, ...}. No retry happens at this layer
// (spec.md §6.2 "no retry at the HTTP layer"); on a failed fetch
// Cache.Get falls back to a stale or hard-coded price instead.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource builds a quote source against baseURL using client for
// the actual requests.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	return &HTTPSource{baseURL: baseURL, client: client}
}

type coinGeckoPrice struct {
	USD float64 `json:"usd"`
}

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context, currencies []currency.Currency) (map[currency.Currency]decimal.Decimal, error) {
	if len(currencies) == 0 {
		return map[currency.Currency]decimal.Decimal{}, nil
	}

	ids := make([]string, 0, len(currencies))
	idToCurrency := make(map[string]currency.Currency, len(currencies))
	for _, c := range currencies {
		id := currency.CoinGeckoID[c]
		ids = append(ids, id)
		idToCurrency[id] = c
	}

	reqURL := fmt.Sprintf("%s?ids=%s&vs_currencies=usd", s.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("quote: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quote: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote: unexpected status %d", resp.StatusCode)
	}

	var raw map[string]coinGeckoPrice
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("quote: decode response: %w", err)
	}

	out := make(map[currency.Currency]decimal.Decimal, len(raw))
	for id, p := range raw {
		if c, ok := idToCurrency[id]; ok {
			out[c] = decimal.NewFromFloat(p.USD)
		}
	}

	return out, nil
}

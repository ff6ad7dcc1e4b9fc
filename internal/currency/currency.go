// Package currency defines the set of crypto currencies CryptoCrash accepts
// for wagers and the hard-coded last-resort prices used when the quote
// source and the quote cache both fail.
package currency

import "github.com/shopspring/decimal"

// Currency identifies one of the supported wallet denominations.
type Currency string

const (
	BTC Currency = "BTC"
	ETH Currency = "ETH"
	LTC Currency = "LTC"
	ADA Currency = "ADA"
	DOT Currency = "DOT"
)

// All lists every supported currency in a stable order, used wherever the
// engine must iterate or seed a new user's wallets deterministically.
var All = []Currency{BTC, ETH, LTC, ADA, DOT}

// Supported reports whether c is one of the currencies CryptoCrash accepts.
func Supported(c Currency) bool {
	switch c {
	case BTC, ETH, LTC, ADA, DOT:
		return true
	default:
		return false
	}
}

// Fallback holds the last-resort USD prices used when a quote can be
// fetched from neither the live source nor the cache (spec.md §4.2).
var Fallback = map[Currency]decimal.Decimal{
	BTC: decimal.NewFromInt(45000),
	ETH: decimal.NewFromInt(3000),
	LTC: decimal.NewFromInt(100),
	ADA: decimal.NewFromFloat(0.5),
	DOT: decimal.NewFromInt(7),
}

// InitialWalletBalance holds the seed balance for a brand new account's
// wallet in each currency (spec.md §4.3 initialize_wallets).
var InitialWalletBalance = map[Currency]decimal.Decimal{
	BTC: decimal.NewFromFloat(0.001),
	ETH: decimal.NewFromFloat(0.01),
	LTC: decimal.NewFromInt(1),
	ADA: decimal.NewFromInt(1),
	DOT: decimal.NewFromInt(1),
}

// CoinGeckoID maps a currency to the id the quote source's CoinGecko-shaped
// API expects in its request.
var CoinGeckoID = map[Currency]string{
	BTC: "bitcoin",
	ETH: "ethereum",
	LTC: "litecoin",
	ADA: "cardano",
	DOT: "polkadot",
}

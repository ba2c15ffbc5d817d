package domain

import "github.com/shopspring/decimal"

// TradingSessionWindow is one trading-session start/end pair, in seconds
// since midnight UTC, used by time-parameterized payout/availability queries.
type TradingSessionWindow struct {
	StartSec int64
	EndSec   int64
}

// AccountInfoSnapshot is the read view returned by the capability provider's
// higher-level accessors and consumed by the reference adapter to populate
// its in-memory capability store (spec.md §3).
type AccountInfoSnapshot struct {
	Balance    decimal.Decimal
	Currency   CurrencyType
	Account    AccountType
	Connected  bool
	OpenTrades int64

	// PayoutTable maps "symbol|option_type" to a payout rate in [0,1].
	PayoutTable map[string]decimal.Decimal

	MinAmount decimal.Decimal
	MaxAmount decimal.Decimal

	MinRefundRate decimal.Decimal
	MaxRefundRate decimal.Decimal

	MinDurationSec int64
	MaxDurationSec int64

	Sessions []TradingSessionWindow

	QueueTimeoutSec    int64
	ResponseTimeoutSec int64
	OrderIntervalMS    int64

	MaxTrades int64
}

package domain

import "github.com/shopspring/decimal"

// TradeResult is mutable and owned by the enclosing transaction. The engine
// is the sole writer except for the documented field set the broker adapter
// may mutate after receiving a transaction pointer via an event (spec.md
// §4.5, "Adapter coupling").
type TradeResult struct {
	OptionID   string
	OptionHash string

	Amount       decimal.Decimal
	PayoutRate   decimal.Decimal
	Profit       decimal.Decimal
	Balance      decimal.Decimal
	OpenPrice    decimal.Decimal
	ClosePrice   decimal.Decimal

	PlaceDateMS int64
	SendDateMS  int64
	OpenDateMS  int64
	CloseDateMS int64
	DelayMS     int64
	PingMS      int64

	TradeState TradeState
	LiveState  TradeState

	ErrorCode        TradeErrorCode
	ErrorDescription string

	AccountType  AccountType
	Currency     CurrencyType
	PlatformType string
}

// Clone returns a value copy suitable for handing to a caller callback
// without exposing engine-internal storage (spec.md §6).
func (r TradeResult) Clone() TradeResult {
	return r
}

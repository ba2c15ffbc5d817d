package domain

import "github.com/shopspring/decimal"

// QueryContext is the parameter to every capability query: a typed kind tag
// plus the fields a given kind may need. Fields irrelevant to a particular
// Kind are left zero. Every query accepts a Timestamp (unix ms); zero means
// "the implementation decides", typically "now" (spec.md §4.1).
type QueryContext struct {
	Kind        RequestKind
	Symbol      string
	OptionType  OptionType
	OrderType   OrderType
	AccountType AccountType
	Currency    CurrencyType
	Amount      decimal.Decimal
	RefundRate  decimal.Decimal
	DurationSec int64
	ExpiryTime  int64
	MinPayout   decimal.Decimal
	TimestampMS int64
}

// QueryContextForRequest builds the QueryContext the validator and engine use
// when asking about a specific TradeRequest.
func QueryContextForRequest(kind RequestKind, req TradeRequest, timestampMS int64) QueryContext {
	return QueryContext{
		Kind:        kind,
		Symbol:      req.Symbol,
		OptionType:  req.OptionType,
		OrderType:   req.OrderType,
		AccountType: req.AccountType,
		Currency:    req.Currency,
		Amount:      req.Amount,
		RefundRate:  req.RefundRate,
		DurationSec: req.DurationSec,
		ExpiryTime:  req.ExpiryTime,
		MinPayout:   req.MinPayout,
		TimestampMS: timestampMS,
	}
}

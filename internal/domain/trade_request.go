package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeCallback is invoked by the engine on every state change of the
// transaction it belongs to, and at least once in a terminal state. The
// request and result it receives are owned clones; mutating them has no
// effect on engine state (spec.md §6).
type TradeCallback func(req TradeRequest, res TradeResult)

// TradeRequest is immutable once submitted via Engine.PlaceTrade. UNKNOWN
// AccountType/Currency are resolved from the capability provider at
// admission time (spec.md §3).
type TradeRequest struct {
	Symbol       string
	OptionType   OptionType
	OrderType    OrderType
	Amount       decimal.Decimal
	RefundRate   decimal.Decimal // ∈ [0,1]
	MinPayout    decimal.Decimal // ∈ [0,1]
	DurationSec  int64           // SPRINT only
	ExpiryTime   int64           // CLASSIC only, unix seconds
	AccountType  AccountType
	Currency     CurrencyType

	// Free-form tags, carried through unmodified.
	SignalName string
	UserData   string
	Comment    string
	UniqueHash string
	UniqueID   uuid.UUID
	AccountID  string

	Callbacks []TradeCallback
}

// ResolveUnknowns fills AccountType/Currency from the capability provider at
// admission time, as required by spec.md §4.5 step 4. It returns a copy; the
// caller's original request is never mutated.
func (r TradeRequest) ResolveUnknowns(accountType AccountType, currency CurrencyType) TradeRequest {
	out := r
	if out.AccountType == AccountTypeUnknown {
		out.AccountType = accountType
	}
	if out.Currency == CurrencyUnknown {
		out.Currency = currency
	}
	return out
}

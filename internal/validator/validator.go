// Package validator implements the Trade Validator (spec.md §4.4): a pure,
// stateless function that asks the capability provider, in a fixed order,
// for every admission predicate and returns the first failing one's error
// code. It is grounded line-for-line on
// optionx_cpp's TradeManagerModule::check_request (RequestValidator.hpp).
package validator

import "github.com/optionx/optionx/internal/domain"

// Provider is the subset of capability.Provider the validator needs. Kept
// narrow so this package does not import internal/capability (the validator
// must stay a pure function of its inputs, spec.md §8 property 5).
type Provider interface {
	QueryBool(ctx domain.QueryContext) bool
}

// predicate is one row of the validator's fixed-order table.
type predicate struct {
	kind domain.RequestKind
	err  domain.TradeErrorCode
}

// order is the normative predicate order of spec.md §4.4. Test suites assert
// this order; do not reorder without updating spec.md.
var order = []predicate{
	{domain.KindConnected, domain.ErrNoConnection},
	{domain.KindSymbolAvailable, domain.ErrInvalidSymbol},
	{domain.KindOptionAvailable, domain.ErrInvalidOption},
	{domain.KindOrderAvailable, domain.ErrInvalidOrder},
	{domain.KindAccountAvailable, domain.ErrInvalidAccount},
	{domain.KindCurrencyAvailable, domain.ErrInvalidCurrency},
	{domain.KindTradeLimitNotExceeded, domain.ErrLimitOpenTrades},
	{domain.KindAmountBelowMax, domain.ErrAmountTooHigh},
	{domain.KindAmountAboveMin, domain.ErrAmountTooLow},
	{domain.KindRefundBelowMax, domain.ErrRefundTooHigh},
	{domain.KindRefundAboveMin, domain.ErrRefundTooLow},
	{domain.KindDurationAvailable, domain.ErrInvalidDuration},
	{domain.KindExpirationAvailable, domain.ErrInvalidExpiryTime},
	{domain.KindPayoutAboveMin, domain.ErrPayoutTooLow},
	{domain.KindAmountBelowBalance, domain.ErrInsufficientBalance},
}

// Validate runs the fixed-order predicate table against req, consulting
// provider for each predicate, and returns the first failing predicate's
// error code, or ErrSuccess if every predicate passes (spec.md §4.4).
//
// Predicate 1 ("symbol non-empty") is checked locally, without consulting
// the provider, matching the original's literal request->symbol.empty()
// check ahead of any capability query.
func Validate(req domain.TradeRequest, provider Provider, nowMS int64) domain.TradeErrorCode {
	if req.Symbol == "" {
		return domain.ErrInvalidSymbol
	}

	for _, p := range order {
		ctx := domain.QueryContextForRequest(p.kind, req, nowMS)
		if !provider.QueryBool(ctx) {
			return p.err
		}
	}

	return domain.ErrSuccess
}

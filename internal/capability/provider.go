// Package capability implements the Account Capability Provider (spec.md
// §4.1): a typed, read-only oracle over an opaque, broker-specific account
// state. It is grounded on optionx_cpp's IAccountInfoData/AccountInfoRequest
// templated getter family, collapsed per Design Note 5 into one query
// function per primitive return type.
package capability

import (
	"github.com/shopspring/decimal"

	"github.com/optionx/optionx/internal/domain"
)

// Provider answers typed queries about account limits, symbol/option
// availability, payout, and connection status. Queries never fail; an
// unsupported Kind returns the type's zero value, which the validator reads
// as "not permitted" (spec.md §4.1, "Failure semantics").
type Provider interface {
	QueryBool(ctx domain.QueryContext) bool
	QueryI64(ctx domain.QueryContext) int64
	QueryF64(ctx domain.QueryContext) float64
	QueryDecimal(ctx domain.QueryContext) decimal.Decimal
	QueryStr(ctx domain.QueryContext) string
	QueryAccountType(ctx domain.QueryContext) domain.AccountType
	QueryCurrency(ctx domain.QueryContext) domain.CurrencyType
}

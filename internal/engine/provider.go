package engine

import (
	"github.com/shopspring/decimal"

	"github.com/optionx/optionx/internal/domain"
)

// Provider is the capability-query surface the engine consults at admission
// and close-evaluate time. It mirrors capability.Provider exactly (spec.md
// §4.1); the engine depends on this narrower, locally declared interface
// instead of importing internal/capability directly, the same decoupling
// internal/validator uses.
type Provider interface {
	QueryBool(ctx domain.QueryContext) bool
	QueryI64(ctx domain.QueryContext) int64
	QueryF64(ctx domain.QueryContext) float64
	QueryDecimal(ctx domain.QueryContext) decimal.Decimal
	QueryStr(ctx domain.QueryContext) string
	QueryAccountType(ctx domain.QueryContext) domain.AccountType
	QueryCurrency(ctx domain.QueryContext) domain.CurrencyType
}

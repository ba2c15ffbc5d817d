package capability

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/optionx/optionx/internal/domain"
)

// MemoryProvider is the reference capability provider: an in-memory snapshot
// plus availability tables, safe for concurrent readers while a single
// mutator (typically the broker adapter) updates it behind mu (spec.md
// §4.1, "Concurrency").
type MemoryProvider struct {
	mu sync.RWMutex

	snapshot domain.AccountInfoSnapshot

	symbols   map[string]bool
	options   map[domain.OptionType]bool
	orders    map[domain.OrderType]bool
	accounts  map[domain.AccountType]bool
	currencies map[domain.CurrencyType]bool

	// clock supplies "now" in unix ms when a query's TimestampMS is zero.
	clock func() int64
}

// NewMemoryProvider creates a MemoryProvider with every availability table
// empty; use the Set* methods (normally invoked by the adapter) to populate
// it before use.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		symbols:    make(map[string]bool),
		options:    make(map[domain.OptionType]bool),
		orders:     make(map[domain.OrderType]bool),
		accounts:   make(map[domain.AccountType]bool),
		currencies: make(map[domain.CurrencyType]bool),
		clock:      func() int64 { return time.Now().UnixMilli() },
	}
}

// SetSnapshot replaces the account-level numeric/session snapshot.
func (p *MemoryProvider) SetSnapshot(s domain.AccountInfoSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = s
}

// Snapshot returns a copy of the current account-level snapshot.
func (p *MemoryProvider) Snapshot() domain.AccountInfoSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// SetSymbolAvailable marks symbol as tradeable or not.
func (p *MemoryProvider) SetSymbolAvailable(symbol string, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.symbols[symbol] = available
}

// SetOptionTypeAvailable marks an option type as tradeable or not.
func (p *MemoryProvider) SetOptionTypeAvailable(t domain.OptionType, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options[t] = available
}

// SetOrderTypeAvailable marks an order direction as tradeable or not.
func (p *MemoryProvider) SetOrderTypeAvailable(t domain.OrderType, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orders[t] = available
}

// SetAccountTypeAvailable marks an account type as usable or not.
func (p *MemoryProvider) SetAccountTypeAvailable(t domain.AccountType, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[t] = available
}

// SetCurrencyAvailable marks a currency as usable or not.
func (p *MemoryProvider) SetCurrencyAvailable(c domain.CurrencyType, available bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currencies[c] = available
}

func payoutKey(symbol string, optionType domain.OptionType) string {
	return fmt.Sprintf("%s|%s", symbol, optionType)
}

// SetPayoutRate sets the payout rate ∈[0,1] for a symbol/option-type pair.
func (p *MemoryProvider) SetPayoutRate(symbol string, optionType domain.OptionType, rate decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snapshot.PayoutTable == nil {
		p.snapshot.PayoutTable = make(map[string]decimal.Decimal)
	}
	p.snapshot.PayoutTable[payoutKey(symbol, optionType)] = rate
}

func (p *MemoryProvider) payoutRateLocked(symbol string, optionType domain.OptionType) decimal.Decimal {
	if p.snapshot.PayoutTable == nil {
		return decimal.Zero
	}
	return p.snapshot.PayoutTable[payoutKey(symbol, optionType)]
}

func (p *MemoryProvider) nowOr(timestampMS int64) int64 {
	if timestampMS != 0 {
		return timestampMS
	}
	return p.clock()
}

// QueryBool answers every boolean RequestKind the validator table (spec.md
// §4.4) and the engine's admission loop need. Unsupported kinds return
// false, the provider's documented "not permitted" zero value.
func (p *MemoryProvider) QueryBool(ctx domain.QueryContext) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch ctx.Kind {
	case domain.KindConnected:
		return p.snapshot.Connected
	case domain.KindSymbolAvailable:
		return p.symbols[ctx.Symbol]
	case domain.KindOptionAvailable:
		return p.options[ctx.OptionType]
	case domain.KindOrderAvailable:
		return p.orders[ctx.OrderType]
	case domain.KindAccountAvailable:
		return p.accounts[ctx.AccountType]
	case domain.KindCurrencyAvailable:
		return p.currencies[ctx.Currency]
	case domain.KindTradeLimitNotExceeded:
		return p.snapshot.OpenTrades < p.snapshot.MaxTrades
	case domain.KindAmountBelowMax:
		return ctx.Amount.LessThanOrEqual(p.snapshot.MaxAmount)
	case domain.KindAmountAboveMin:
		return ctx.Amount.GreaterThanOrEqual(p.snapshot.MinAmount)
	case domain.KindRefundBelowMax:
		return ctx.RefundRate.LessThanOrEqual(p.snapshot.MaxRefundRate)
	case domain.KindRefundAboveMin:
		return ctx.RefundRate.GreaterThanOrEqual(p.snapshot.MinRefundRate)
	case domain.KindDurationAvailable:
		if ctx.OptionType != domain.OptionTypeSprint {
			return true
		}
		return ctx.DurationSec >= p.snapshot.MinDurationSec && ctx.DurationSec <= p.snapshot.MaxDurationSec
	case domain.KindExpirationAvailable:
		if ctx.OptionType != domain.OptionTypeClassic {
			return true
		}
		return ctx.ExpiryTime > p.nowOr(ctx.TimestampMS)/1000
	case domain.KindPayoutAboveMin:
		return p.payoutRateLocked(ctx.Symbol, ctx.OptionType).GreaterThanOrEqual(ctx.MinPayout)
	case domain.KindAmountBelowBalance:
		return ctx.Amount.LessThanOrEqual(p.snapshot.Balance)
	default:
		return false
	}
}

// QueryI64 answers every integer-typed RequestKind (payout in basis points,
// durations, timeouts, intervals, counters).
func (p *MemoryProvider) QueryI64(ctx domain.QueryContext) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch ctx.Kind {
	case domain.KindPayoutBasisPoints:
		rate := p.payoutRateLocked(ctx.Symbol, ctx.OptionType)
		return rate.Mul(decimal.NewFromInt(10000)).IntPart()
	case domain.KindMinDuration:
		return p.snapshot.MinDurationSec
	case domain.KindMaxDuration:
		return p.snapshot.MaxDurationSec
	case domain.KindSessionStart:
		if len(p.snapshot.Sessions) == 0 {
			return 0
		}
		return p.snapshot.Sessions[0].StartSec
	case domain.KindSessionEnd:
		if len(p.snapshot.Sessions) == 0 {
			return 0
		}
		return p.snapshot.Sessions[0].EndSec
	case domain.KindQueueTimeout:
		return p.snapshot.QueueTimeoutSec
	case domain.KindResponseTimeout:
		return p.snapshot.ResponseTimeoutSec
	case domain.KindOrderIntervalMS:
		return p.snapshot.OrderIntervalMS
	case domain.KindOpenTrades:
		return p.snapshot.OpenTrades
	case domain.KindMaxTrades:
		return p.snapshot.MaxTrades
	default:
		return 0
	}
}

// QueryF64 answers float-typed accessors: balance and the payout rate
// expressed as a plain float in [0,1] rather than as a decimal.Decimal.
func (p *MemoryProvider) QueryF64(ctx domain.QueryContext) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch ctx.Kind {
	case domain.KindBalance:
		f, _ := p.snapshot.Balance.Float64()
		return f
	case domain.KindPayoutRate:
		f, _ := p.payoutRateLocked(ctx.Symbol, ctx.OptionType).Float64()
		return f
	default:
		return 0
	}
}

// QueryDecimal answers decimal-precision numeric accessors.
func (p *MemoryProvider) QueryDecimal(ctx domain.QueryContext) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()

	switch ctx.Kind {
	case domain.KindBalance:
		return p.snapshot.Balance
	case domain.KindPayoutRate:
		return p.payoutRateLocked(ctx.Symbol, ctx.OptionType)
	case domain.KindMinAmount:
		return p.snapshot.MinAmount
	case domain.KindMaxAmount:
		return p.snapshot.MaxAmount
	default:
		return decimal.Zero
	}
}

// QueryStr answers string-typed accessors. The reference provider has none
// today; it exists so the interface matches spec.md §4.1's four primitive
// views in full.
func (p *MemoryProvider) QueryStr(ctx domain.QueryContext) string {
	return ""
}

// QueryAccountType answers the account-type enum accessor.
func (p *MemoryProvider) QueryAccountType(ctx domain.QueryContext) domain.AccountType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Account
}

// QueryCurrency answers the currency enum accessor.
func (p *MemoryProvider) QueryCurrency(ctx domain.QueryContext) domain.CurrencyType {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot.Currency
}

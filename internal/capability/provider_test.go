package capability_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/optionx/optionx/internal/capability"
	"github.com/optionx/optionx/internal/domain"
)

func newTestProvider() *capability.MemoryProvider {
	p := capability.NewMemoryProvider()
	p.SetSnapshot(domain.AccountInfoSnapshot{
		Balance:         decimal.NewFromInt(1000),
		Connected:       true,
		OpenTrades:      0,
		MaxTrades:       5,
		MinAmount:       decimal.NewFromInt(1),
		MaxAmount:       decimal.NewFromInt(500),
		MinRefundRate:   decimal.Zero,
		MaxRefundRate:   decimal.NewFromFloat(0.5),
		MinDurationSec:  5,
		MaxDurationSec:  300,
		QueueTimeoutSec: 10,
	})
	p.SetSymbolAvailable("EURUSD", true)
	p.SetOptionTypeAvailable(domain.OptionTypeSprint, true)
	p.SetOrderTypeAvailable(domain.OrderTypeBuy, true)
	p.SetAccountTypeAvailable(domain.AccountTypeDemo, true)
	p.SetCurrencyAvailable(domain.CurrencyUSD, true)
	p.SetPayoutRate("EURUSD", domain.OptionTypeSprint, decimal.NewFromFloat(0.8))
	return p
}

func TestUnsupportedKindReturnsZeroValue(t *testing.T) {
	p := newTestProvider()
	assert.False(t, p.QueryBool(domain.QueryContext{Kind: domain.KindUnknown}))
	assert.Equal(t, int64(0), p.QueryI64(domain.QueryContext{Kind: domain.KindUnknown}))
	assert.Equal(t, "", p.QueryStr(domain.QueryContext{Kind: domain.KindUnknown}))
}

func TestSymbolAndTradeLimitPredicates(t *testing.T) {
	p := newTestProvider()
	assert.True(t, p.QueryBool(domain.QueryContext{Kind: domain.KindSymbolAvailable, Symbol: "EURUSD"}))
	assert.False(t, p.QueryBool(domain.QueryContext{Kind: domain.KindSymbolAvailable, Symbol: "GBPUSD"}))
	assert.True(t, p.QueryBool(domain.QueryContext{Kind: domain.KindTradeLimitNotExceeded}))
}

func TestPayoutAccessorsAgree(t *testing.T) {
	p := newTestProvider()
	ctx := domain.QueryContext{Kind: domain.KindPayoutBasisPoints, Symbol: "EURUSD", OptionType: domain.OptionTypeSprint}
	assert.Equal(t, int64(8000), p.QueryI64(ctx))

	ctxF := domain.QueryContext{Kind: domain.KindPayoutRate, Symbol: "EURUSD", OptionType: domain.OptionTypeSprint}
	assert.InDelta(t, 0.8, p.QueryF64(ctxF), 0.0001)
}

func TestDurationAvailableIsNoOpOutsideSprint(t *testing.T) {
	p := newTestProvider()
	assert.True(t, p.QueryBool(domain.QueryContext{Kind: domain.KindDurationAvailable, OptionType: domain.OptionTypeClassic}))
	assert.False(t, p.QueryBool(domain.QueryContext{Kind: domain.KindDurationAvailable, OptionType: domain.OptionTypeSprint, DurationSec: 1}))
	assert.True(t, p.QueryBool(domain.QueryContext{Kind: domain.KindDurationAvailable, OptionType: domain.OptionTypeSprint, DurationSec: 60}))
}

func TestConcurrentReadsAreSafe(t *testing.T) {
	p := newTestProvider()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				p.QueryBool(domain.QueryContext{Kind: domain.KindConnected})
				p.QueryDecimal(domain.QueryContext{Kind: domain.KindBalance})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

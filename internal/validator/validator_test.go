package validator_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/optionx/optionx/internal/capability"
	"github.com/optionx/optionx/internal/domain"
	"github.com/optionx/optionx/internal/validator"
)

func validRequest() domain.TradeRequest {
	return domain.TradeRequest{
		Symbol:      "EURUSD",
		OptionType:  domain.OptionTypeSprint,
		OrderType:   domain.OrderTypeBuy,
		Amount:      decimal.NewFromInt(10),
		RefundRate:  decimal.NewFromFloat(0.1),
		MinPayout:   decimal.NewFromFloat(0.5),
		DurationSec: 60,
		AccountType: domain.AccountTypeDemo,
		Currency:    domain.CurrencyUSD,
	}
}

func validProvider() *capability.MemoryProvider {
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

func TestValidateSucceedsOnFullyValidRequest(t *testing.T) {
	got := validator.Validate(validRequest(), validProvider(), 1000)
	assert.Equal(t, domain.ErrSuccess, got)
}

func TestValidateEmptySymbolShortCircuitsLocally(t *testing.T) {
	req := validRequest()
	req.Symbol = ""
	// A provider that would fail every query if consulted; the empty-symbol
	// check must never reach it.
	p := capability.NewMemoryProvider()
	got := validator.Validate(req, p, 1000)
	assert.Equal(t, domain.ErrInvalidSymbol, got)
}

func TestValidateStopsAtFirstFailingPredicateInFixedOrder(t *testing.T) {
	// Not connected AND unknown symbol both fail; KindConnected precedes
	// KindSymbolAvailable in the table, so NO_CONNECTION must win.
	req := validRequest()
	req.Symbol = "GBPUSD"
	p := validProvider()
	p.SetSnapshot(func() domain.AccountInfoSnapshot {
		s := p.Snapshot()
		s.Connected = false
		return s
	}())

	got := validator.Validate(req, p, 1000)
	assert.Equal(t, domain.ErrNoConnection, got)
}

func TestValidateEachPredicateFailureInOrder(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(req *domain.TradeRequest, p *capability.MemoryProvider)
		wantErr domain.TradeErrorCode
	}{
		{"disconnected", func(_ *domain.TradeRequest, p *capability.MemoryProvider) {
			s := p.Snapshot()
			s.Connected = false
			p.SetSnapshot(s)
		}, domain.ErrNoConnection},
		{"symbol unavailable", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.Symbol = "GBPUSD"
		}, domain.ErrInvalidSymbol},
		{"option unavailable", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.OptionType = domain.OptionTypeClassic
		}, domain.ErrInvalidOption},
		{"order unavailable", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.OrderType = domain.OrderTypeSell
		}, domain.ErrInvalidOrder},
		{"account unavailable", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.AccountType = domain.AccountTypeReal
		}, domain.ErrInvalidAccount},
		{"currency unavailable", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.Currency = domain.CurrencyEUR
		}, domain.ErrInvalidCurrency},
		{"trade limit exceeded", func(_ *domain.TradeRequest, p *capability.MemoryProvider) {
			s := p.Snapshot()
			s.OpenTrades = s.MaxTrades
			p.SetSnapshot(s)
		}, domain.ErrLimitOpenTrades},
		{"amount too high", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.Amount = decimal.NewFromInt(10000)
		}, domain.ErrAmountTooHigh},
		{"amount too low", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.Amount = decimal.NewFromFloat(0.01)
		}, domain.ErrAmountTooLow},
		{"refund too high", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.RefundRate = decimal.NewFromFloat(0.9)
		}, domain.ErrRefundTooHigh},
		{"duration invalid", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.DurationSec = 1
		}, domain.ErrInvalidDuration},
		{"payout too low", func(req *domain.TradeRequest, _ *capability.MemoryProvider) {
			req.MinPayout = decimal.NewFromFloat(0.95)
		}, domain.ErrPayoutTooLow},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			p := validProvider()
			tc.mutate(&req, p)
			got := validator.Validate(req, p, 1000)
			assert.Equal(t, tc.wantErr, got)
		})
	}
}

func TestValidateInsufficientBalance(t *testing.T) {
	req := validRequest()
	req.Amount = decimal.NewFromInt(10)
	p := validProvider()
	s := p.Snapshot()
	s.Balance = decimal.NewFromInt(5)
	p.SetSnapshot(s)

	got := validator.Validate(req, p, 1000)
	assert.Equal(t, domain.ErrInsufficientBalance, got)
}

func TestValidateClassicExpiryBypassesDurationCheck(t *testing.T) {
	req := validRequest()
	req.OptionType = domain.OptionTypeClassic
	req.DurationSec = 0
	req.ExpiryTime = 5000 // seconds; nowMS below is 1000ms -> 1s
	p := validProvider()
	p.SetOptionTypeAvailable(domain.OptionTypeClassic, true)
	p.SetPayoutRate("EURUSD", domain.OptionTypeClassic, decimal.NewFromFloat(0.8))

	got := validator.Validate(req, p, 1000)
	assert.Equal(t, domain.ErrSuccess, got)
}

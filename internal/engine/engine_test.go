package engine_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionx/optionx/internal/capability"
	"github.com/optionx/optionx/internal/domain"
	"github.com/optionx/optionx/internal/engine"
	"github.com/optionx/optionx/internal/eventbus"
)

func newProvider() *capability.MemoryProvider {
	p := capability.NewMemoryProvider()
	p.SetSnapshot(domain.AccountInfoSnapshot{
		Balance:            decimal.NewFromInt(1000),
		Account:            domain.AccountTypeDemo,
		Currency:           domain.CurrencyUSD,
		Connected:          true,
		MaxTrades:          10,
		MinAmount:          decimal.NewFromInt(1),
		MaxAmount:          decimal.NewFromInt(1000),
		MaxRefundRate:      decimal.NewFromFloat(0.5),
		MinDurationSec:     1,
		MaxDurationSec:     3600,
		QueueTimeoutSec:    60,
		ResponseTimeoutSec: 60,
		OrderIntervalMS:    0,
	})
	p.SetSymbolAvailable("EURUSD", true)
	p.SetOptionTypeAvailable(domain.OptionTypeSprint, true)
	p.SetOrderTypeAvailable(domain.OrderTypeBuy, true)
	p.SetOrderTypeAvailable(domain.OrderTypeSell, true)
	p.SetAccountTypeAvailable(domain.AccountTypeDemo, true)
	p.SetCurrencyAvailable(domain.CurrencyUSD, true)
	p.SetPayoutRate("EURUSD", domain.OptionTypeSprint, decimal.NewFromFloat(0.8))
	return p
}

func baseRequest() domain.TradeRequest {
	return domain.TradeRequest{
		Symbol:      "EURUSD",
		OptionType:  domain.OptionTypeSprint,
		OrderType:   domain.OrderTypeBuy,
		Amount:      decimal.NewFromInt(100),
		RefundRate:  decimal.NewFromFloat(0.1),
		MinPayout:   decimal.NewFromFloat(0.5),
		DurationSec: 10,
	}
}

// stateRecorder collects every trade_state a callback observes, in order.
type stateRecorder struct {
	mu     sync.Mutex
	states []domain.TradeState
}

func (r *stateRecorder) callback(_ domain.TradeRequest, res domain.TradeResult) {
	r.mu.Lock()
	r.states = append(r.states, res.TradeState)
	r.mu.Unlock()
}

func (r *stateRecorder) snapshot() []domain.TradeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TradeState(nil), r.states...)
}

// indexOf returns the first index of target at or after from, or -1.
func indexOf(states []domain.TradeState, target domain.TradeState, from int) int {
	for i := from; i < len(states); i++ {
		if states[i] == target {
			return i
		}
	}
	return -1
}

func TestHappyPathWin(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()

	var now int64 = 1_000_000
	clock := func() int64 { return atomic.LoadInt64(&now) }

	eng := engine.New(bus, p, nil, clock)
	eng.OnAdmit(func(h *engine.TransactionHandle) {
		h.Mutate(func(r *domain.TradeResult) {
			r.OpenPrice = decimal.NewFromFloat(1.12335)
			r.OpenDateMS = clock()
			r.TradeState = domain.StateOpenSuccess
			r.LiveState = domain.StateOpenSuccess
		})
	})
	eng.OnWaitingClose(func(h *engine.TransactionHandle) {
		res := h.Result()
		h.Mutate(func(r *domain.TradeResult) {
			r.TradeState = res.LiveState
		})
	})

	rec := &stateRecorder{}
	req := baseRequest()
	req.Callbacks = []domain.TradeCallback{rec.callback}
	require.True(t, eng.PlaceTrade(req))

	eng.Tick(now) // admit -> WAITING_OPEN -> OPEN_SUCCESS -> IN_PROGRESS

	bus.Notify(domain.PriceUpdateEvent{Ticks: []domain.TickData{{
		Symbol:      "EURUSD",
		PriceDigits: 5,
		Tick: domain.InnerTick{
			Bid: decimal.NewFromFloat(1.12340),
			Ask: decimal.NewFromFloat(1.12350),
		},
		Status: domain.TickInitialized,
	}}})

	atomic.AddInt64(&now, 1_000)
	eng.Tick(now) // drains price update; live_state becomes WIN, trade_state untouched

	atomic.AddInt64(&now, 10_000) // now == open_date + duration*1000 + 1000ms slack
	eng.Tick(now)                 // WAITING_CLOSE -> adapter commits WIN -> finalize

	states := rec.snapshot()
	iWaitingOpen := indexOf(states, domain.StateWaitingOpen, 0)
	iOpenSuccess := indexOf(states, domain.StateOpenSuccess, iWaitingOpen+1)
	iInProgress := indexOf(states, domain.StateInProgress, iOpenSuccess+1)
	iWaitingClose := indexOf(states, domain.StateWaitingClose, iInProgress+1)
	iWin := indexOf(states, domain.StateWin, iWaitingClose+1)

	require.NotEqual(t, -1, iWaitingOpen)
	require.NotEqual(t, -1, iOpenSuccess)
	require.NotEqual(t, -1, iInProgress)
	require.NotEqual(t, -1, iWaitingClose)
	require.NotEqual(t, -1, iWin)
	assert.Equal(t, len(states)-1, iWin, "WIN must be the final callback")

	last := states[len(states)-1]
	assert.Equal(t, domain.StateWin, last)
}

func TestInvalidSymbolFinalizesOnce(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()
	var now int64 = 1_000_000
	eng := engine.New(bus, p, nil, func() int64 { return atomic.LoadInt64(&now) })

	var requestEvents int32
	eventbus.Subscribe[domain.TradeRequestEvent](bus, "probe", func(domain.TradeRequestEvent) {
		atomic.AddInt32(&requestEvents, 1)
	})

	rec := &stateRecorder{}
	req := baseRequest()
	req.Symbol = ""
	req.Callbacks = []domain.TradeCallback{rec.callback}
	require.True(t, eng.PlaceTrade(req))

	eng.Tick(now)

	states := rec.snapshot()
	require.Len(t, states, 1)
	assert.Equal(t, domain.StateOpenError, states[0])
	assert.Equal(t, int32(0), atomic.LoadInt32(&requestEvents))
}

func TestQueueTimeoutCancelsSecondRequest(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()
	p.SetSnapshot(func() domain.AccountInfoSnapshot {
		s := p.Snapshot()
		s.MaxTrades = 1
		s.QueueTimeoutSec = 1
		s.OrderIntervalMS = 10_000
		return s
	}())

	var now int64 = 1_000_000
	eng := engine.New(bus, p, nil, func() int64 { return atomic.LoadInt64(&now) })
	eng.OnAdmit(func(h *engine.TransactionHandle) {
		h.Mutate(func(r *domain.TradeResult) { r.TradeState = domain.StateOpenSuccess })
	})

	rec1, rec2 := &stateRecorder{}, &stateRecorder{}
	req1 := baseRequest()
	req1.Callbacks = []domain.TradeCallback{rec1.callback}
	req2 := baseRequest()
	req2.Callbacks = []domain.TradeCallback{rec2.callback}

	require.True(t, eng.PlaceTrade(req1))
	require.True(t, eng.PlaceTrade(req2))

	eng.Tick(now) // admits req1 only (order_interval_ms gates a second admit this tick)

	atomic.AddInt64(&now, 2_000) // past queue_timeout for req2
	eng.Tick(now)

	states1 := rec1.snapshot()
	states2 := rec2.snapshot()
	require.NotEmpty(t, states1)
	assert.NotContains(t, states1, domain.StateOpenError)

	require.Len(t, states2, 1)
	assert.Equal(t, domain.StateOpenError, states2[0])
}

func TestResponseTimeoutFinalizesCheckError(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()
	p.SetSnapshot(func() domain.AccountInfoSnapshot {
		s := p.Snapshot()
		s.ResponseTimeoutSec = 3
		return s
	}())

	var now int64 = 1_000_000
	eng := engine.New(bus, p, nil, func() int64 { return atomic.LoadInt64(&now) })
	eng.OnAdmit(func(h *engine.TransactionHandle) {
		h.Mutate(func(r *domain.TradeResult) {
			r.TradeState = domain.StateOpenSuccess
			r.OpenPrice = decimal.NewFromFloat(1.1)
		})
	})
	// Adapter never settles: no OnWaitingClose hook registered.

	rec := &stateRecorder{}
	req := baseRequest()
	req.DurationSec = 2
	req.Callbacks = []domain.TradeCallback{rec.callback}
	require.True(t, eng.PlaceTrade(req))

	eng.Tick(now) // admit, OPEN_SUCCESS -> IN_PROGRESS

	// The hook leaves open_date unset, so close_ms = send_date + 2000;
	// response_timeout = 3000.
	// Finalize only after close_ms + response_timeout has elapsed.
	atomic.AddInt64(&now, 4_000)
	eng.Tick(now) // WAITING_CLOSE entered
	atomic.AddInt64(&now, 2_000)
	eng.Tick(now) // past close_ms+response_timeout -> CHECK_ERROR

	states := rec.snapshot()
	last := states[len(states)-1]
	assert.Equal(t, domain.StateCheckError, last)
}

func TestForcedCloseOnDisconnect(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()
	var now int64 = 1_000_000
	eng := engine.New(bus, p, nil, func() int64 { return atomic.LoadInt64(&now) })
	eng.OnAdmit(func(h *engine.TransactionHandle) {
		h.Mutate(func(r *domain.TradeResult) { r.TradeState = domain.StateOpenSuccess })
	})

	var openCounts []int64
	var mu sync.Mutex
	eventbus.Subscribe[domain.OpenTradesEvent](bus, "probe", func(ev domain.OpenTradesEvent) {
		mu.Lock()
		openCounts = append(openCounts, ev.Count)
		mu.Unlock()
	})

	rec := &stateRecorder{}
	req := baseRequest()
	req.Callbacks = []domain.TradeCallback{rec.callback}
	require.True(t, eng.PlaceTrade(req))

	eng.Tick(now) // admits, OPEN_SUCCESS -> IN_PROGRESS

	bus.Notify(domain.DisconnectRequestEvent{})
	eng.Tick(now)

	states := rec.snapshot()
	last := states[len(states)-1]
	assert.Equal(t, domain.StateCheckError, last)

	mu.Lock()
	finalCount := openCounts[len(openCounts)-1]
	mu.Unlock()
	assert.Equal(t, int64(0), finalCount)

	// Idempotent: a second disconnect after drain is a no-op.
	bus.Notify(domain.DisconnectRequestEvent{})
	eng.Tick(now)
	assert.Len(t, rec.snapshot(), len(states))
}

func TestRateLimitedAdmissionSpacing(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()
	p.SetSnapshot(func() domain.AccountInfoSnapshot {
		s := p.Snapshot()
		s.OrderIntervalMS = 500
		s.MaxTrades = 10
		return s
	}())

	var now int64 = 1_000_000
	eng := engine.New(bus, p, nil, func() int64 { return atomic.LoadInt64(&now) })

	var mu sync.Mutex
	var admitTimes []int64
	eventbus.Subscribe[domain.TradeRequestEvent](bus, "probe", func(domain.TradeRequestEvent) {
		mu.Lock()
		admitTimes = append(admitTimes, atomic.LoadInt64(&now))
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		req := baseRequest()
		require.True(t, eng.PlaceTrade(req))
	}

	for i := 0; i < 5; i++ {
		eng.Tick(now)
		atomic.AddInt64(&now, 500)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, admitTimes, 5)
	for i := 1; i < len(admitTimes); i++ {
		assert.GreaterOrEqual(t, admitTimes[i]-admitTimes[i-1], int64(500))
	}
}

func TestFinalizeFiresExactlyOnceForTerminalTransaction(t *testing.T) {
	bus := eventbus.New()
	p := newProvider()
	var now int64 = 1_000_000
	eng := engine.New(bus, p, nil, func() int64 { return atomic.LoadInt64(&now) })

	var finalizeFires int32
	rec := &stateRecorder{}
	req := baseRequest()
	req.Symbol = "" // fails validation immediately -> single-callback terminal transaction
	req.Callbacks = []domain.TradeCallback{
		rec.callback,
		func(_ domain.TradeRequest, res domain.TradeResult) {
			if res.TradeState.IsTerminal() {
				atomic.AddInt32(&finalizeFires, 1)
			}
		},
	}
	require.True(t, eng.PlaceTrade(req))

	eng.Tick(now)
	eng.Tick(now) // a second tick must not re-finalize an already-gone transaction

	assert.Equal(t, int32(1), atomic.LoadInt32(&finalizeFires))
}

// Package engine implements the Trade Lifecycle Engine (C5, spec.md §4.5):
// the three-phase admit/close-evaluate/finalize tick run by a single
// cooperative worker, grounded directly on optionx_cpp's TradeManagerModule
// (TradeProcessing.hpp, TransactionQueue.hpp, Utils.hpp).
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/optionx/optionx/internal/domain"
	"github.com/optionx/optionx/internal/eventbus"
	"github.com/optionx/optionx/internal/validator"
)

// Engine owns the pending (FIFO) and open (insertion-ordered) transaction
// queues and drives them through admit, close-evaluate, and finalize every
// tick. It never performs I/O; it communicates with the broker adapter
// solely through bus publications and TransactionHandle mutations (spec.md
// §4.5, "Adapter coupling").
type Engine struct {
	bus      *eventbus.Bus
	provider Provider
	logger   *zap.SugaredLogger
	clock    func() int64

	pendingMu sync.Mutex
	pending   []*Transaction

	openMu sync.Mutex
	open   []*Transaction

	openTradesCount int64 // atomic
	lastAdmitMS     int64 // atomic

	incomingMu sync.Mutex
	incoming   []domain.Event

	admitHooksMu        sync.Mutex
	admitHooks          []TransactionHook
	waitingCloseHooksMu sync.Mutex
	waitingCloseHooks   []TransactionHook

	shutdownFlag int32 // atomic bool
}

// TransactionHook receives a *TransactionHandle at the moment a transaction
// is admitted or enters WAITING_CLOSE. It is how the broker adapter gets
// write access to a transaction's result (spec.md §9, Design Note 2):
// domain.TradeRequestEvent/TradeStatusEvent carry read-only clones for
// generic subscribers, while a registered hook receives the live handle.
type TransactionHook func(handle *TransactionHandle)

// OnAdmit registers hook to run, with the handle of the just-admitted
// transaction, immediately after TradeRequestEvent is published each tick a
// request is admitted.
func (e *Engine) OnAdmit(hook TransactionHook) {
	e.admitHooksMu.Lock()
	e.admitHooks = append(e.admitHooks, hook)
	e.admitHooksMu.Unlock()
}

// OnWaitingClose registers hook to run, with the handle of the transaction
// that just entered WAITING_CLOSE, immediately after TradeStatusEvent is
// published.
func (e *Engine) OnWaitingClose(hook TransactionHook) {
	e.waitingCloseHooksMu.Lock()
	e.waitingCloseHooks = append(e.waitingCloseHooks, hook)
	e.waitingCloseHooksMu.Unlock()
}

func (e *Engine) runAdmitHooks(txn *Transaction) {
	e.admitHooksMu.Lock()
	hooks := append([]TransactionHook(nil), e.admitHooks...)
	e.admitHooksMu.Unlock()
	h := &TransactionHandle{txn: txn}
	for _, hook := range hooks {
		hook(h)
	}
}

func (e *Engine) runWaitingCloseHooks(txn *Transaction) {
	e.waitingCloseHooksMu.Lock()
	hooks := append([]TransactionHook(nil), e.waitingCloseHooks...)
	e.waitingCloseHooksMu.Unlock()
	h := &TransactionHandle{txn: txn}
	for _, hook := range hooks {
		hook(h)
	}
}

// New creates an Engine bound to bus and provider. A nil logger installs a
// no-op logger; a nil clock installs the real wall clock.
func New(bus *eventbus.Bus, provider Provider, logger *zap.SugaredLogger, clock func() int64) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clock == nil {
		clock = func() int64 { return time.Now().UnixMilli() }
	}
	e := &Engine{bus: bus, provider: provider, logger: logger, clock: clock}
	// A transaction has never been admitted yet; start far enough in the
	// past that the first admission is never blocked by order_interval_ms.
	e.lastAdmitMS = -(int64(1) << 60)
	e.subscribe()
	return e
}

func (e *Engine) subscribe() {
	eventbus.Subscribe[domain.PriceUpdateEvent](e.bus, e, func(ev domain.PriceUpdateEvent) {
		e.enqueueIncoming(ev)
	})
	eventbus.Subscribe[domain.DisconnectRequestEvent](e.bus, e, func(ev domain.DisconnectRequestEvent) {
		e.enqueueIncoming(ev)
	})
	eventbus.Subscribe[domain.TradeStatusEvent](e.bus, e, func(ev domain.TradeStatusEvent) {
		e.logger.Debugw("trade status event observed", "symbol", ev.Request.Symbol, "state", ev.Result.TradeState.String())
	})
	eventbus.Subscribe[domain.AuthDataEvent](e.bus, e, func(ev domain.AuthDataEvent) {
		e.logger.Debugw("auth data event observed", "provider", ev.Provider)
	})
	eventbus.Subscribe[domain.ConnectRequestEvent](e.bus, e, func(ev domain.ConnectRequestEvent) {
		e.logger.Debugw("connect request event observed", "provider", ev.Provider)
	})
	eventbus.Subscribe[domain.AccountInfoUpdateEvent](e.bus, e, func(ev domain.AccountInfoUpdateEvent) {
		e.logger.Debugw("account info update event observed")
	})
}

// OnStart satisfies domain.Module. Subscriptions are installed in New, so
// there is nothing further to do here.
func (e *Engine) OnStart() error { return nil }

// OnTick satisfies domain.Module, delegating to Tick.
func (e *Engine) OnTick(nowMS int64) { e.Tick(nowMS) }

// OnShutdown satisfies domain.Module, delegating to Shutdown.
func (e *Engine) OnShutdown() { e.Shutdown() }

// PlaceTrade appends req to the pending queue. It returns true iff req
// passed a minimal sanity check (a non-negative amount); validation proper
// happens at admission time and is reported through req's callbacks, never
// through this return value (spec.md §6, "Submission surface").
func (e *Engine) PlaceTrade(req domain.TradeRequest) bool {
	if req.Amount.IsNegative() {
		return false
	}

	nowMS := e.clock()
	result := domain.TradeResult{
		TradeState:  domain.StateWaitingOpen,
		LiveState:   domain.StateWaitingOpen,
		PlaceDateMS: nowMS,
		Amount:      req.Amount,
		AccountType: req.AccountType,
		Currency:    req.Currency,
	}
	txn := newTransaction(req, result)

	e.pendingMu.Lock()
	e.pending = append(e.pending, txn)
	e.pendingMu.Unlock()

	e.logger.Debugw("trade request queued", "symbol", req.Symbol, "amount", req.Amount.String())
	return true
}

// ApplyAdapterUpdate is the engine's documented entry point for adapter
// writes to a transaction's mutable result fields (spec.md §4.5, "Adapter
// coupling"). It forwards to the handle's own Mutate, existing as a named
// method on Engine so callers reach it the same way they reach PlaceTrade.
func (e *Engine) ApplyAdapterUpdate(handle *TransactionHandle, fn func(*domain.TradeResult)) domain.TradeResult {
	return handle.Mutate(fn)
}

// Tick runs the three phases in order: drain events queued since the last
// tick, admit, close-evaluate, finalize (spec.md §4.5).
func (e *Engine) Tick(nowMS int64) {
	e.processIncoming(nowMS)
	e.admitPhase(nowMS)
	e.closeEvaluatePhase(nowMS)
	e.finalizePhase(nowMS)
}

// Shutdown runs the disconnect "finalize all" path once, synchronously
// (spec.md §5, "Cancellation semantics"). It is idempotent: a second call
// finds both queues already empty.
func (e *Engine) Shutdown() {
	atomic.StoreInt32(&e.shutdownFlag, 1)
	e.handleDisconnect(e.clock())
}

func (e *Engine) enqueueIncoming(ev domain.Event) {
	e.incomingMu.Lock()
	e.incoming = append(e.incoming, ev)
	e.incomingMu.Unlock()
}

func (e *Engine) processIncoming(nowMS int64) {
	e.incomingMu.Lock()
	batch := e.incoming
	e.incoming = nil
	e.incomingMu.Unlock()

	for _, ev := range batch {
		switch v := ev.(type) {
		case domain.PriceUpdateEvent:
			e.applyPriceUpdate(v.Ticks)
		case domain.DisconnectRequestEvent:
			e.handleDisconnect(nowMS)
			if v.Callback != nil {
				v.Callback()
			}
		}
	}
}

// admitPhase implements spec.md §4.5 "Admission". It sweeps the pending
// queue for requests older than queue_timeout, then admits at most one
// request per tick, gated by order_interval_ms and max_trades.
func (e *Engine) admitPhase(nowMS int64) {
	queueTimeoutMS := e.provider.QueryI64(domain.QueryContext{Kind: domain.KindQueueTimeout}) * 1000

	e.pendingMu.Lock()
	var kept, canceled []*Transaction
	for _, txn := range e.pending {
		if queueTimeoutMS > 0 && nowMS-txn.Result().PlaceDateMS > queueTimeoutMS {
			canceled = append(canceled, txn)
		} else {
			kept = append(kept, txn)
		}
	}
	e.pending = kept
	e.pendingMu.Unlock()

	orderIntervalMS := e.provider.QueryI64(domain.QueryContext{Kind: domain.KindOrderIntervalMS})
	maxTrades := e.provider.QueryI64(domain.QueryContext{Kind: domain.KindMaxTrades})

	for {
		e.pendingMu.Lock()
		if len(e.pending) == 0 {
			e.pendingMu.Unlock()
			break
		}
		if nowMS-atomic.LoadInt64(&e.lastAdmitMS) < orderIntervalMS {
			e.pendingMu.Unlock()
			break
		}
		if atomic.LoadInt64(&e.openTradesCount) >= maxTrades {
			e.pendingMu.Unlock()
			break
		}
		txn := e.pending[0]
		e.pending = e.pending[1:]
		e.pendingMu.Unlock()

		if e.admitOne(txn, nowMS) {
			atomic.StoreInt64(&e.lastAdmitMS, nowMS)
			break
		}
		// Validation failures are finalized inside admitOne and do not
		// consume the order-interval budget; keep draining.
	}

	for _, txn := range canceled {
		e.finalizePendingNow(txn, domain.ErrLongQueueWait, domain.StateOpenError, nowMS)
	}
}

// admitOne resolves unknown account/currency fields, runs the validator, and
// either places the transaction into open or finalizes it with the
// validator's error. It reports true iff the transaction was admitted.
func (e *Engine) admitOne(txn *Transaction, nowMS int64) bool {
	req := txn.Request()
	accountType := e.provider.QueryAccountType(domain.QueryContext{})
	currency := e.provider.QueryCurrency(domain.QueryContext{})
	resolved := req.ResolveUnknowns(accountType, currency)
	txn.setRequest(resolved)

	errCode := validator.Validate(resolved, e.provider, nowMS)
	if errCode != domain.ErrSuccess {
		e.logger.Infow("trade rejected at admission", "symbol", resolved.Symbol, "error", errCode.String())
		e.finalizePendingNow(txn, errCode, domain.StateOpenError, nowMS)
		return false
	}

	payout := e.provider.QueryDecimal(domain.QueryContextForRequest(domain.KindPayoutRate, resolved, nowMS))
	balance := e.provider.QueryDecimal(domain.QueryContext{Kind: domain.KindBalance})

	txn.transition(func(r *domain.TradeResult) {
		r.TradeState = domain.StateWaitingOpen
		r.LiveState = domain.StateWaitingOpen
		r.SendDateMS = nowMS
		r.Balance = balance
		r.PayoutRate = payout
		r.Amount = resolved.Amount
		r.AccountType = resolved.AccountType
		r.Currency = resolved.Currency
	})

	atomic.AddInt64(&e.openTradesCount, 1)
	e.publishOpenTradesEvent(txn)
	e.logger.Infow("trade admitted", "symbol", resolved.Symbol, "amount", resolved.Amount.String())
	e.bus.Notify(domain.TradeRequestEvent{Request: resolved, Result: txn.Result()})
	e.runAdmitHooks(txn)

	e.openMu.Lock()
	e.open = append(e.open, txn)
	e.openMu.Unlock()

	return true
}

// closeEvaluatePhase implements spec.md §4.5 "Close-evaluate".
func (e *Engine) closeEvaluatePhase(nowMS int64) {
	e.openMu.Lock()
	open := append([]*Transaction(nil), e.open...)
	e.openMu.Unlock()

	responseTimeoutMS := e.provider.QueryI64(domain.QueryContext{Kind: domain.KindResponseTimeout}) * 1000

	for _, txn := range open {
		res := txn.Result()

		switch res.TradeState {
		case domain.StateOpenSuccess:
			txn.transition(func(r *domain.TradeResult) {
				r.TradeState = domain.StateInProgress
				r.LiveState = domain.StateInProgress
			})
			continue
		case domain.StateInProgress, domain.StateWaitingClose:
			// fall through to close-time evaluation
		default:
			continue
		}

		closeMS := res.CloseDateMS
		if closeMS <= 0 {
			req := txn.Request()
			switch req.OptionType {
			case domain.OptionTypeSprint:
				base := maxInt64(res.OpenDateMS, res.SendDateMS, res.PlaceDateMS)
				if base <= 0 || req.DurationSec <= 0 {
					e.setTerminal(txn, domain.ErrInvalidDuration, domain.StateCheckError, nowMS)
					continue
				}
				closeMS = base + req.DurationSec*1000
			case domain.OptionTypeClassic:
				if req.ExpiryTime <= 0 {
					e.setTerminal(txn, domain.ErrInvalidExpiryTime, domain.StateCheckError, nowMS)
					continue
				}
				closeMS = req.ExpiryTime * 1000
			default:
				e.setTerminal(txn, domain.ErrInvalidDuration, domain.StateCheckError, nowMS)
				continue
			}
			txn.setResult(func(r *domain.TradeResult) { r.CloseDateMS = closeMS })
		}

		if nowMS < closeMS {
			continue
		}
		if nowMS > closeMS+responseTimeoutMS {
			e.setTerminal(txn, domain.ErrLongResponseWait, domain.StateCheckError, nowMS)
			continue
		}
		if res.TradeState != domain.StateWaitingClose {
			txn.transition(func(r *domain.TradeResult) { r.TradeState = domain.StateWaitingClose })
			e.logger.Debugw("trade entering waiting_close", "symbol", txn.Request().Symbol)
			e.bus.Notify(domain.TradeStatusEvent{Request: txn.Request(), Result: txn.Result()})
			e.runWaitingCloseHooks(txn)
		}
	}
}

// finalizePhase implements spec.md §4.5 "Finalize": every open transaction
// whose trade_state is terminal is removed, decremented, and fired exactly
// once.
func (e *Engine) finalizePhase(nowMS int64) {
	e.openMu.Lock()
	kept := e.open[:0:0]
	var done []*Transaction
	for _, txn := range e.open {
		if txn.Result().TradeState.IsTerminal() {
			done = append(done, txn)
		} else {
			kept = append(kept, txn)
		}
	}
	e.open = kept
	e.openMu.Unlock()

	for _, txn := range done {
		e.completeFinalize(txn)
	}
}

// applyPriceUpdate implements spec.md §4.5 "Price-update handling" and
// §4.5.1 "Live-state evaluation".
func (e *Engine) applyPriceUpdate(ticks []domain.TickData) {
	bySymbol := make(map[string]domain.TickData, len(ticks))
	for _, t := range ticks {
		if t.IsInitialized() {
			bySymbol[t.Symbol] = t
		}
	}
	if len(bySymbol) == 0 {
		return
	}

	e.openMu.Lock()
	open := append([]*Transaction(nil), e.open...)
	e.openMu.Unlock()

	for _, txn := range open {
		res := txn.Result()
		if res.TradeState != domain.StateOpenSuccess && res.TradeState != domain.StateInProgress {
			continue
		}
		req := txn.Request()
		tick, ok := bySymbol[req.Symbol]
		if !ok {
			continue
		}
		mid := tick.MidPrice()
		live := computeLiveState(req.OrderType, res.OpenPrice, mid, tick.PriceDigits)
		txn.transition(func(r *domain.TradeResult) {
			r.ClosePrice = mid
			r.LiveState = live
		})
	}
}

// computeLiveState implements spec.md §4.5.1. Ties at or below one ulp of
// the symbol's declared decimal precision report STANDOFF, per spec.md's
// resolution of the source's ambiguous tie behavior (§9).
func computeLiveState(order domain.OrderType, openPrice, mid decimal.Decimal, priceDigits int32) domain.TradeState {
	if openPrice.IsZero() {
		return domain.StateStandoff
	}
	cmp := mid.Round(priceDigits).Cmp(openPrice.Round(priceDigits))
	switch order {
	case domain.OrderTypeBuy:
		switch {
		case cmp > 0:
			return domain.StateWin
		case cmp < 0:
			return domain.StateLoss
		default:
			return domain.StateStandoff
		}
	case domain.OrderTypeSell:
		switch {
		case cmp < 0:
			return domain.StateWin
		case cmp > 0:
			return domain.StateLoss
		default:
			return domain.StateStandoff
		}
	default:
		return domain.StateStandoff
	}
}

// handleDisconnect implements spec.md §4.5 "Disconnect handling". It is
// idempotent: once both queues are empty, further calls are no-ops.
func (e *Engine) handleDisconnect(nowMS int64) {
	e.pendingMu.Lock()
	pending := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	for _, txn := range pending {
		e.finalizePendingNow(txn, domain.ErrClientForcedClose, domain.StateOpenError, nowMS)
	}

	e.openMu.Lock()
	open := e.open
	e.open = nil
	e.openMu.Unlock()

	for _, txn := range open {
		e.setTerminal(txn, domain.ErrClientForcedClose, domain.StateCheckError, nowMS)
		e.completeFinalize(txn)
	}

	if len(pending) > 0 || len(open) > 0 {
		e.logger.Warnw("forced close on disconnect", "pending", len(pending), "open", len(open))
	}
}

// finalizePendingNow finalizes a transaction that never reached the open
// queue: validation failures and queue-timeout cancellations. The terminal
// callback fires here, immediately, since no later finalizePhase sweep will
// ever see a transaction that never entered open.
func (e *Engine) finalizePendingNow(txn *Transaction, code domain.TradeErrorCode, state domain.TradeState, nowMS int64) {
	e.setTerminal(txn, code, state, nowMS)
	txn.markFinalized()
}

// completeFinalize is the single path by which an open-queue transaction's
// terminal state takes bookkeeping effect: exactly-once counter decrement
// and exactly-once OpenTradesEvent. The terminal callback itself was already
// fired by whatever transition produced the terminal state (setTerminal or
// an adapter's TransactionHandle.Mutate), so this never fires callbacks
// itself — doing so would double-deliver the terminal state.
func (e *Engine) completeFinalize(txn *Transaction) {
	if !txn.markFinalized() {
		return
	}
	atomic.AddInt64(&e.openTradesCount, -1)
	e.publishOpenTradesEvent(txn)
}

// setTerminal transitions a transaction to a terminal error state, firing
// callbacks exactly once for the transition.
func (e *Engine) setTerminal(txn *Transaction, code domain.TradeErrorCode, state domain.TradeState, nowMS int64) {
	txn.transition(func(r *domain.TradeResult) {
		r.ErrorCode = code
		r.ErrorDescription = code.String()
		r.TradeState = state
		r.LiveState = state
		if r.PlaceDateMS == 0 {
			r.PlaceDateMS = nowMS
		}
		if r.SendDateMS == 0 {
			r.SendDateMS = nowMS
		}
		if r.OpenDateMS == 0 {
			r.OpenDateMS = nowMS
		}
		if r.CloseDateMS == 0 {
			r.CloseDateMS = nowMS
		}
	})
}

func (e *Engine) publishOpenTradesEvent(txn *Transaction) {
	e.bus.Notify(domain.OpenTradesEvent{
		Count:   atomic.LoadInt64(&e.openTradesCount),
		Request: txn.Request(),
		Result:  txn.Result(),
	})
}

func maxInt64(vs ...int64) int64 {
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

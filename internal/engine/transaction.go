package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/optionx/optionx/internal/domain"
)

// Transaction is the engine-owned (TradeRequest, TradeResult) pair tracked
// across admission, close-evaluate, and finalize (spec.md §9, Design Note 2:
// "the canonical owner is the engine"). The adapter never receives a
// Transaction directly — only a *TransactionHandle, constructed by the
// engine, whose Mutate method is the single documented path for adapter
// writes to result fields.
type Transaction struct {
	reqMu sync.RWMutex
	req   domain.TradeRequest

	resMu  sync.Mutex
	result domain.TradeResult

	callbacks []domain.TradeCallback

	finalizeOnce sync.Once
}

func newTransaction(req domain.TradeRequest, result domain.TradeResult) *Transaction {
	if req.UniqueID == uuid.Nil {
		req.UniqueID = uuid.New()
	}
	return &Transaction{
		req:       req,
		result:    result,
		callbacks: req.Callbacks,
	}
}

// Request returns a copy of the transaction's current request.
func (t *Transaction) Request() domain.TradeRequest {
	t.reqMu.RLock()
	defer t.reqMu.RUnlock()
	return t.req
}

func (t *Transaction) setRequest(req domain.TradeRequest) {
	t.reqMu.Lock()
	t.req = req
	t.reqMu.Unlock()
}

// Result returns a clone of the transaction's current result.
func (t *Transaction) Result() domain.TradeResult {
	t.resMu.Lock()
	defer t.resMu.Unlock()
	return t.result.Clone()
}

// setResult applies mutate under the result mutex and returns the resulting
// clone. It is the only way any goroutine — engine worker or adapter caller
// — writes to a transaction's result.
func (t *Transaction) setResult(mutate func(*domain.TradeResult)) domain.TradeResult {
	t.resMu.Lock()
	mutate(&t.result)
	out := t.result.Clone()
	t.resMu.Unlock()
	return out
}

func (t *Transaction) fireCallbacks() {
	req := t.Request()
	res := t.Result()
	for _, cb := range t.callbacks {
		cb(req, res)
	}
}

// transition applies mutate and fires callbacks exactly once for the
// resulting state. It is the single path for every caller-visible state
// change, whether driven by the engine worker or by an adapter mutation
// through TransactionHandle.Mutate; setResult alone is reserved for
// internal bookkeeping writes (e.g. caching a computed close date) that
// must not surface a callback.
func (t *Transaction) transition(mutate func(*domain.TradeResult)) domain.TradeResult {
	out := t.setResult(mutate)
	t.fireCallbacks()
	return out
}

// markFinalized reports true the first time it is called for this
// transaction, false on every subsequent call. It is the mechanism behind
// "exactly one finalize callback per terminal transaction" (spec.md §8,
// property 1).
func (t *Transaction) markFinalized() bool {
	fired := false
	t.finalizeOnce.Do(func() { fired = true })
	return fired
}

// TransactionHandle is the narrow, adapter-facing view of a Transaction
// (spec.md §9, Design Note 2 / §4.5 "Adapter coupling"). It exposes reads of
// both halves of the transaction and a single mutation entry point; the
// adapter must confine its writes to the documented field set (trade_state,
// live_state, open_price, close_price, open_date, close_date, profit,
// payout, error_code) and then publish a TradeStatusEvent so the next engine
// tick observes the change.
type TransactionHandle struct {
	txn *Transaction
}

// ID returns the transaction's unique identifier.
func (h *TransactionHandle) ID() uuid.UUID {
	return h.txn.Request().UniqueID
}

// Request returns a copy of the bound request.
func (h *TransactionHandle) Request() domain.TradeRequest {
	return h.txn.Request()
}

// Result returns a copy of the current result.
func (h *TransactionHandle) Result() domain.TradeResult {
	return h.txn.Result()
}

// Mutate applies fn to the transaction's result under its mutex, fires the
// request's callbacks with the resulting state (every adapter-driven write
// is a state change, same as an engine-driven one), and returns the
// resulting clone. Callers outside the engine package must only touch the
// adapter-writable field set documented on TransactionHandle.
func (h *TransactionHandle) Mutate(fn func(*domain.TradeResult)) domain.TradeResult {
	return h.txn.transition(fn)
}

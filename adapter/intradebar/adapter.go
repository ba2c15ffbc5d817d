package intradebar

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/optionx/optionx/internal/capability"
	"github.com/optionx/optionx/internal/domain"
	"github.com/optionx/optionx/internal/engine"
	"github.com/optionx/optionx/internal/eventbus"
)

// Adapter is the reference Broker Adapter for Intrade Bar. It implements
// domain.Module (Design Note 4: the teacher's virtual-method module base
// class becomes this capability interface) and wires the REST client and
// websocket stream to the engine's publish points per spec.md §6:
//
//   - TradeRequestEvent (admission): place the order over HTTP, then mutate
//     the transaction's OPEN_SUCCESS/OPEN_ERROR result via the handle the
//     engine handed it through Engine.OnAdmit.
//   - entering WAITING_CLOSE: poll/settle the trade over HTTP, then mutate
//     the terminal result via the handle from Engine.OnWaitingClose.
//   - periodically: poll the account snapshot and push it into the shared
//     capability.MemoryProvider the engine reads from.
type Adapter struct {
	cfg      Config
	auth     *AuthClient
	client   *Client
	stream   *Stream
	bus      *eventbus.Bus
	eng      *engine.Engine
	provider *capability.MemoryProvider
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds an Adapter. provider is the capability.MemoryProvider the
// engine was constructed with; the adapter is its sole writer (spec.md
// §4.1).
func New(cfg Config, store SessionStore, bus *eventbus.Bus, eng *engine.Engine, provider *capability.MemoryProvider, logger *zap.SugaredLogger) *Adapter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	auth := NewAuthClient(cfg, store, logger)
	client := NewClient(cfg, auth, logger)
	stream := NewStream(cfg, auth, bus, logger)

	a := &Adapter{
		cfg:      cfg,
		auth:     auth,
		client:   client,
		stream:   stream,
		bus:      bus,
		eng:      eng,
		provider: provider,
		logger:   logger,
	}

	eng.OnAdmit(a.handleAdmit)
	eng.OnWaitingClose(a.handleWaitingClose)

	return a
}

// OnStart authenticates, opens the price stream, and performs one
// synchronous account poll before returning, so the capability provider is
// populated before the engine's first tick runs.
func (a *Adapter) OnStart() error {
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if err := a.auth.Login(a.ctx); err != nil {
		return err
	}
	a.auth.StartTokenEarlyRefresh(a.ctx)

	if err := a.pollAccount(a.ctx); err != nil {
		a.logger.Warnw("initial account poll failed", "error", err)
	}
	go a.accountPollLoop(a.ctx)

	if err := a.stream.Run(a.ctx); err != nil {
		return err
	}

	a.logger.Infow("intradebar adapter started", "environment", a.cfg.Environment)
	return nil
}

// OnTick satisfies domain.Module; the adapter's work is driven by its own
// goroutines (stream reader/processor, account poll loop), not by the
// scheduler's tick, so there is nothing to do here.
func (a *Adapter) OnTick(nowMS int64) {}

// OnShutdown tears down the stream and background goroutines.
func (a *Adapter) OnShutdown() {
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.stream.Close(); err != nil {
		a.logger.Warnw("stream close error", "error", err)
	}
}

// handleAdmit is the engine.TransactionHook run synchronously right after a
// transaction is admitted. It places the order over HTTP and mutates the
// transaction's result with the broker's acknowledgement or error, per
// spec.md §6's "adapter executes and then mutates result" contract.
func (a *Adapter) handleAdmit(h *engine.TransactionHandle) {
	req := h.Request()
	resp, err := a.client.PlaceOrder(a.ctx, req)
	if err != nil {
		a.logger.Warnw("place order failed", "symbol", req.Symbol, "error", err)
		h.Mutate(func(r *domain.TradeResult) {
			r.TradeState = domain.StateOpenError
			r.LiveState = domain.StateOpenError
			r.ErrorCode = domain.ErrParsingError
			r.ErrorDescription = err.Error()
		})
		return
	}

	h.Mutate(func(r *domain.TradeResult) {
		r.OptionID = resp.OptionID
		r.OptionHash = resp.OptionHash
		r.OpenPrice = parseDecimal(resp.OpenPrice)
		r.OpenDateMS = resp.OpenDateMS
		r.TradeState = domain.StateOpenSuccess
		r.LiveState = domain.StateOpenSuccess
	})
	a.bus.Notify(domain.TradeStatusEvent{Request: h.Request(), Result: h.Result()})
}

// handleWaitingClose is the engine.TransactionHook run synchronously right
// after a transaction enters WAITING_CLOSE. It polls settlement over HTTP
// and commits the terminal result.
func (a *Adapter) handleWaitingClose(h *engine.TransactionHandle) {
	res := h.Result()
	status, err := a.client.GetTradeStatus(a.ctx, res.OptionID)
	if err != nil {
		a.logger.Warnw("settlement poll failed", "option_id", res.OptionID, "error", err)
		h.Mutate(func(r *domain.TradeResult) {
			r.TradeState = domain.StateCheckError
			r.LiveState = domain.StateCheckError
			r.ErrorCode = domain.ErrParsingError
			r.ErrorDescription = err.Error()
		})
		return
	}

	terminal := wireStateToTradeState(status.State)
	h.Mutate(func(r *domain.TradeResult) {
		r.TradeState = terminal
		r.LiveState = terminal
		r.ClosePrice = parseDecimal(status.ClosePrice)
		r.CloseDateMS = status.CloseDateMS
		r.Profit = parseDecimal(status.Profit)
		r.PayoutRate = parseDecimal(status.Payout)
	})
}

// wireStateToTradeState maps Intrade Bar's settlement vocabulary onto the
// engine's terminal TradeState set.
func wireStateToTradeState(s string) domain.TradeState {
	switch s {
	case "win":
		return domain.StateWin
	case "loss":
		return domain.StateLoss
	case "standoff", "draw":
		return domain.StateStandoff
	case "refund":
		return domain.StateRefund
	default:
		return domain.StateCheckError
	}
}

func (a *Adapter) accountPollLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.AccountPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.pollAccount(ctx); err != nil {
				a.logger.Warnw("account poll failed", "error", err)
			}
		}
	}
}

// pollAccount fetches the account snapshot and pushes it into the shared
// capability.MemoryProvider, then publishes an AccountInfoUpdateEvent on the
// bus (spec.md §4.1/§6). The engine reads the provider afresh on every tick.
func (a *Adapter) pollAccount(ctx context.Context) error {
	info, err := a.client.GetAccountInfo(ctx)
	if err != nil {
		return err
	}

	snapshot := domain.AccountInfoSnapshot{
		Balance:            parseDecimal(info.Balance),
		Currency:           wireCurrency(info.Currency),
		Account:            wireAccountType(info.AccountType),
		Connected:          info.Connected,
		OpenTrades:         info.OpenTrades,
		MaxTrades:          info.MaxTrades,
		MinAmount:          parseDecimal(info.MinAmount),
		MaxAmount:          parseDecimal(info.MaxAmount),
		MinRefundRate:      parseDecimal(info.MinRefundRate),
		MaxRefundRate:      parseDecimal(info.MaxRefundRate),
		MinDurationSec:     info.MinDurationSec,
		MaxDurationSec:     info.MaxDurationSec,
		QueueTimeoutSec:    info.QueueTimeoutSec,
		ResponseTimeoutSec: info.RespTimeoutSec,
		OrderIntervalMS:    info.OrderIntervalMS,
	}
	a.provider.SetSnapshot(snapshot)
	for _, sym := range info.Symbols {
		a.provider.SetSymbolAvailable(sym, true)
	}
	for key, rate := range info.PayoutTable {
		symbol, optionType := splitPayoutKey(key)
		a.provider.SetPayoutRate(symbol, optionType, parseDecimal(rate))
	}

	a.bus.Notify(domain.AccountInfoUpdateEvent{Snapshot: snapshot})
	return nil
}

func wireCurrency(s string) domain.CurrencyType {
	switch s {
	case "USD":
		return domain.CurrencyUSD
	case "EUR":
		return domain.CurrencyEUR
	case "GBP":
		return domain.CurrencyGBP
	case "BTC":
		return domain.CurrencyBTC
	case "ETH":
		return domain.CurrencyETH
	case "USDT":
		return domain.CurrencyUSDT
	case "USDC":
		return domain.CurrencyUSDC
	case "RUB":
		return domain.CurrencyRUB
	case "UAH":
		return domain.CurrencyUAH
	case "KZT":
		return domain.CurrencyKZT
	default:
		return domain.CurrencyUnknown
	}
}

func wireAccountType(s string) domain.AccountType {
	switch s {
	case "DEMO":
		return domain.AccountTypeDemo
	case "REAL":
		return domain.AccountTypeReal
	default:
		return domain.AccountTypeUnknown
	}
}

func wireOptionType(s string) domain.OptionType {
	switch s {
	case "SPRINT":
		return domain.OptionTypeSprint
	case "CLASSIC":
		return domain.OptionTypeClassic
	default:
		return domain.OptionTypeUnknown
	}
}

// splitPayoutKey parses a "symbol|OPTION_TYPE" key, the same format
// capability.MemoryProvider's payoutKey produces internally.
func splitPayoutKey(key string) (string, domain.OptionType) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], wireOptionType(key[i+1:])
		}
	}
	return key, domain.OptionTypeUnknown
}

// Package intradebar is the reference Broker Adapter for the Intrade Bar
// backend: OAuth2-style session auth, a retrying/rate-limited HTTP client,
// and a gorilla/websocket streaming client, wired to the engine's publish
// points the same way the teacher's adapter package wires Saxo Bank's
// AuthClient/BrokerClient/WebSocketClient triad (adapter/interfaces.go) to
// its own domain types.
package intradebar

import "github.com/shopspring/decimal"

// placeOrderRequest is the wire shape Intrade Bar expects for a new binary
// option order.
type placeOrderRequest struct {
	Symbol      string `json:"symbol"`
	OptionType  string `json:"option_type"`
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	RefundRate  string `json:"refund_rate"`
	DurationSec int64  `json:"duration_sec,omitempty"`
	ExpiryTime  int64  `json:"expiry_time,omitempty"`
	AccountType string `json:"account_type"`
	Currency    string `json:"currency"`
	ClientID    string `json:"client_id"`
}

// placeOrderResponse is the wire shape of a successful order acknowledgement.
type placeOrderResponse struct {
	OptionID   string `json:"option_id"`
	OptionHash string `json:"option_hash"`
	OpenPrice  string `json:"open_price"`
	OpenDateMS int64  `json:"open_date_ms"`
}

// tradeStatusResponse is the wire shape of a settlement poll.
type tradeStatusResponse struct {
	OptionID    string `json:"option_id"`
	State       string `json:"state"`
	ClosePrice  string `json:"close_price"`
	CloseDateMS int64  `json:"close_date_ms"`
	Profit      string `json:"profit"`
	Payout      string `json:"payout"`
}

// accountInfoResponse is the wire shape of an account snapshot poll.
type accountInfoResponse struct {
	Balance         string            `json:"balance"`
	Currency        string            `json:"currency"`
	AccountType     string            `json:"account_type"`
	Connected       bool              `json:"connected"`
	OpenTrades      int64             `json:"open_trades"`
	MaxTrades       int64             `json:"max_trades"`
	MinAmount       string            `json:"min_amount"`
	MaxAmount       string            `json:"max_amount"`
	MinRefundRate   string            `json:"min_refund_rate"`
	MaxRefundRate   string            `json:"max_refund_rate"`
	MinDurationSec  int64             `json:"min_duration_sec"`
	MaxDurationSec  int64             `json:"max_duration_sec"`
	QueueTimeoutSec int64             `json:"queue_timeout_sec"`
	RespTimeoutSec  int64             `json:"response_timeout_sec"`
	OrderIntervalMS int64             `json:"order_interval_ms"`
	Symbols         []string          `json:"symbols"`
	PayoutTable     map[string]string `json:"payout_table"`
}

// priceTick is one streamed quote frame, matching the teacher's
// `"msg", "key", value, ...` positional websocket call shape
// (adapter/websocket/message_parser.go) reduced to the bid/ask/symbol the
// engine's live-state evaluator consumes.
type priceTick struct {
	Symbol      string          `json:"symbol"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	PriceDigits int32           `json:"price_digits"`
	ExchangeMS  int64           `json:"exchange_ms"`
}

// streamFrame is the outer envelope every websocket message arrives in:
// a message kind tag followed by a kind-specific payload, matching
// message_parser.go's "msg", "key", value framing.
type streamFrame struct {
	Kind  string          `json:"kind"`
	Ticks []priceTick     `json:"ticks,omitempty"`
	Error string          `json:"error,omitempty"`
}

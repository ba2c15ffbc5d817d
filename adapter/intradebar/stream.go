package intradebar

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/optionx/optionx/internal/domain"
	"github.com/optionx/optionx/internal/eventbus"
)

// Stream is the adapter's price-streaming client: a single reader goroutine
// decoding frames and a separate processor goroutine turning them into bus
// events, the same separated-goroutine shape as the teacher's
// SaxoWebSocketClient (adapter/websocket/saxo_websocket.go). Reconnection
// uses the teacher's ConnectionManager backoff fields
// (adapter/websocket/connection_manager.go) with a delay that grows linearly
// per attempt up to MaxReconnectDelay: reconnectAttempts reset on a
// clean read, capped at maxReconnectAttempts before giving up and asking the
// engine to finalize everything open.
type Stream struct {
	cfg    Config
	auth   *AuthClient
	bus    *eventbus.Bus
	logger *zap.SugaredLogger

	mu   sync.Mutex
	conn *websocket.Conn

	reconnectAttempts int

	frames chan streamFrame
	stop   chan struct{}
}

// NewStream builds a Stream bound to bus, publishing domain.PriceUpdateEvent
// and domain.DisconnectRequestEvent on it.
func NewStream(cfg Config, auth *AuthClient, bus *eventbus.Bus, logger *zap.SugaredLogger) *Stream {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Stream{
		cfg:    cfg,
		auth:   auth,
		bus:    bus,
		logger: logger,
		frames: make(chan streamFrame, 256),
		stop:   make(chan struct{}),
	}
}

// Run connects and runs the reader/processor goroutines until ctx is
// canceled or the reconnect budget is exhausted.
func (s *Stream) Run(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.processLoop(ctx)
	go s.readLoop(ctx)
	return nil
}

// Close tears the stream down.
func (s *Stream) Close() error {
	close(s.stop)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) connect(ctx context.Context) error {
	token, err := s.auth.GetAccessToken()
	if err != nil {
		return fmt.Errorf("intradebar: stream auth: %w", err)
	}

	header := make(map[string][]string)
	header["Authorization"] = []string{"Bearer " + token}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, s.cfg.WebSocketURL, header)
	if err != nil {
		return fmt.Errorf("intradebar: stream dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Infow("intradebar stream connected", "url", s.cfg.WebSocketURL)
	return nil
}

// readLoop decodes one frame per message and hands it to the processor via
// the frames channel, matching the teacher's split between socket I/O and
// message interpretation (message_parser.go / message_handler.go).
func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warnw("intradebar stream read error", "error", err)
			if !s.reconnectWithBackoff(ctx) {
				s.bus.Notify(domain.DisconnectRequestEvent{})
				return
			}
			continue
		}

		var frame streamFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warnw("intradebar stream frame decode failed", "error", err)
			continue
		}
		s.reconnectAttempts = 0

		select {
		case s.frames <- frame:
		case <-s.stop:
			return
		}
	}
}

func (s *Stream) processLoop(ctx context.Context) {
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case frame := <-s.frames:
			s.handleFrame(frame)
		}
	}
}

func (s *Stream) handleFrame(frame streamFrame) {
	switch frame.Kind {
	case "ticks":
		ticks := make([]domain.TickData, 0, len(frame.Ticks))
		for _, t := range frame.Ticks {
			ticks = append(ticks, domain.TickData{
				Symbol:      t.Symbol,
				PriceDigits: t.PriceDigits,
				Tick: domain.InnerTick{
					Bid:        t.Bid,
					Ask:        t.Ask,
					ExchangeMS: t.ExchangeMS,
					ReceivedMS: time.Now().UnixMilli(),
				},
				Status: domain.TickInitialized | domain.TickRealtime,
			})
		}
		if len(ticks) > 0 {
			s.bus.Notify(domain.PriceUpdateEvent{Ticks: ticks})
		}
	case "error":
		s.logger.Warnw("intradebar stream error frame", "error", frame.Error)
	default:
		s.logger.Debugw("intradebar stream unrecognized frame", "kind", frame.Kind)
	}
}

// reconnectWithBackoff mirrors the teacher's reconnectWithBackoff
// (adapter/websocket/connection_manager.go): linear backoff capped at
// maxReconnectDelay, giving up once maxReconnectAttempts is exhausted.
func (s *Stream) reconnectWithBackoff(ctx context.Context) bool {
	for s.reconnectAttempts < s.cfg.MaxReconnectAttempts {
		s.reconnectAttempts++
		delay := time.Duration(s.reconnectAttempts) * s.cfg.BaseReconnectDelay
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}

		s.logger.Infow("intradebar stream reconnecting", "attempt", s.reconnectAttempts, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false
		case <-s.stop:
			return false
		}

		if err := s.connect(ctx); err != nil {
			s.logger.Warnw("intradebar stream reconnect failed", "attempt", s.reconnectAttempts, "error", err)
			continue
		}
		return true
	}

	s.logger.Errorw("intradebar stream reconnect budget exhausted", "max_attempts", s.cfg.MaxReconnectAttempts)
	return false
}

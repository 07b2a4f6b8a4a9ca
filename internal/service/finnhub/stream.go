package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"OptSignal/internal/domain/models"
	drepo "OptSignal/internal/domain/repository"
	applogger "OptSignal/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	maxReconnectDelay = time.Minute
	writeWait         = 5 * time.Second
	tickBuffer        = 1024
)

// Stream is a MarketStream over the Finnhub trade WebSocket.
type Stream struct {
	apiKey       string
	url          string
	symbols      []string
	retryDelay   time.Duration
	pingInterval time.Duration
	dialer       *websocket.Dialer
	log          *applogger.Logger

	writeMu  sync.Mutex // gorilla allows one concurrent writer
	mu       sync.Mutex
	conn     *websocket.Conn
	failures int
	dropped  atomic.Int64
}

// StreamOption configures Stream.
type StreamOption func(*Stream)

// WithReconnectDelay sets the first reconnect wait. It doubles per failed
// attempt up to a minute.
func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithPingInterval sets the keepalive period. A connection silent for two
// periods is treated as dead.
func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.pingInterval = d
		}
	}
}

func WithStreamLogger(l *applogger.Logger) StreamOption {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

func NewStream(apiKey, wsURL string, symbols []string, opts ...StreamOption) *Stream {
	s := &Stream{
		apiKey:       apiKey,
		url:          wsURL,
		symbols:      symbols,
		retryDelay:   5 * time.Second,
		pingInterval: 30 * time.Second,
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:          applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(applogger.String("component", "finnhub_ws"))
	return s
}

var _ drepo.MarketStream = (*Stream)(nil)

func (s *Stream) Connect(ctx context.Context) error {
	u, err := url.Parse(s.url)
	if err != nil {
		return fmt.Errorf("finnhub ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", s.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	deadline := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(deadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	})

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("finnhub connected", applogger.Int("symbols", len(s.symbols)))
	return nil
}

type subscription struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func (s *Stream) Subscribe(ctx context.Context) error {
	for _, sym := range s.symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.write(subscription{Type: "subscribe", Symbol: sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
	s.log.Info("finnhub subscribed", applogger.Strings("symbols", s.symbols))
	return nil
}

func (s *Stream) write(v interface{}) error {
	conn := s.current()
	if conn == nil {
		return errors.New("finnhub not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// Read streams ticks until the connection fails or ctx ends. Both
// channels close then; a read failure is sent on the error channel first.
// Ticks are dropped when the consumer falls a full buffer behind.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, tickBuffer)
	errs := make(chan error, 1)
	conn := s.current()

	go func() {
		defer close(ticks)
		defer close(errs)
		if conn == nil {
			errs <- errors.New("finnhub not connected")
			return
		}

		readCtx, stop := context.WithCancel(ctx)
		defer stop()
		go s.keepalive(readCtx, conn)
		go func() {
			// unblock ReadMessage on shutdown
			<-readCtx.Done()
			if ctx.Err() != nil {
				_ = conn.SetReadDeadline(time.Now())
			}
		}()

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			for _, t := range decodeTicks(frame) {
				select {
				case ticks <- t:
				default:
					if n := s.dropped.Add(1); n%1000 == 1 {
						s.log.Warn("finnhub ticks dropped", applogger.Int64("dropped", n))
					}
				}
			}
		}
	}()
	return ticks, errs
}

func (s *Stream) keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			s.writeMu.Unlock()
			if err != nil {
				s.log.Debug("finnhub ping failed", applogger.Error(err))
			}
		}
	}
}

// Reconnect drops the connection, waits out the backoff and subscribes
// again.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()

	s.mu.Lock()
	wait := s.retryDelay
	for i := 0; i < s.failures && wait < maxReconnectDelay; i++ {
		wait *= 2
	}
	s.failures++
	s.mu.Unlock()
	if wait > maxReconnectDelay {
		wait = maxReconnectDelay
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (s *Stream) IsConnected() bool {
	return s.current() != nil
}

func (s *Stream) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

type wireTrade struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
	Volume float64 `json:"v"`
	TimeMs int64   `json:"t"`
}

type wireFrame struct {
	Type string      `json:"type"`
	Data []wireTrade `json:"data"`
}

// decodeTicks turns one frame into ticks. Pings, errors and malformed
// frames yield none.
func decodeTicks(frame []byte) []*models.Tick {
	var f wireFrame
	if err := json.Unmarshal(frame, &f); err != nil || f.Type != "trade" {
		return nil
	}
	out := make([]*models.Tick, 0, len(f.Data))
	for _, d := range f.Data {
		if d.Symbol == "" || !(d.Price > 0) {
			continue
		}
		out = append(out, &models.Tick{Symbol: d.Symbol, Timestamp: d.TimeMs / 1000, Price: d.Price, Volume: d.Volume})
	}
	return out
}

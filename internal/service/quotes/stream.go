package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"FinSense/internal/domain/models"
	drepo "FinSense/internal/domain/repository"
	"FinSense/pkg/logger"
)

// Stream is a QuoteStream over a Finnhub-compatible trade websocket.
type Stream struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *logger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// New creates a quote stream for symbols.
func New(apiKey, websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, l *logger.Logger) *Stream {
	if l == nil {
		l = logger.Nop()
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l.With(logger.String("component", "quote_stream")),
	}
}

func (s *Stream) dialURL() (string, error) {
	u, err := url.Parse(s.websocketURL)
	if err != nil {
		return "", fmt.Errorf("parse websocket url: %w", err)
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("token", s.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (s *Stream) Connect(ctx context.Context) error {
	u, err := s.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("quote stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.l.Info("quote stream connected", logger.Int("symbols", len(s.symbols)))
	return nil
}

type subscribeMsg struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return fmt.Errorf("quote stream not connected")
	}
	for _, sym := range s.symbols {
		if err := s.conn.WriteJSON(subscribeMsg{Type: "subscribe", Symbol: sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.l.Info("quote stream subscribed", logger.Strings("symbols", s.symbols))
	return nil
}

type tradeFrame struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type frame struct {
	Type string       `json:"type"`
	Data []tradeFrame `json:"data"`
}

// decodeFrame returns the quotes carried by a trade frame. Other frame types
// (ping, error) yield nothing.
func decodeFrame(b []byte) []*models.Quote {
	var m frame
	if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
		return nil
	}
	out := make([]*models.Quote, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Quote{
			Symbol: d.S,
			Price:  d.P,
			Volume: d.V,
			Time:   time.UnixMilli(d.T).UTC(),
		})
	}
	return out
}

// Read streams quotes until ctx ends or the connection fails. The error
// channel carries at most one error.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Quote, <-chan error) {
	quotes := make(chan *models.Quote, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.conn == conn && conn != nil {
					_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(quotes)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("quote stream not connected")
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("quote stream read: %w", err)
				return
			}
			for _, q := range decodeFrame(b) {
				select {
				case quotes <- q:
				default:
					// slow consumer; the next quote supersedes this one
				}
			}
		}
	}()

	return quotes, errs
}

func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
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
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

var _ drepo.QuoteStream = (*Stream)(nil)

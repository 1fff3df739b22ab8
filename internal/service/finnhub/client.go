// Package finnhub streams live trades from the Finnhub websocket.
package finnhub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	applogger "PortDelta/pkg/logger"
	"PortDelta/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Client implements a MarketStream backed by Finnhub WebSocket.
type Client struct {
	apiKey         string
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	logger         *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

var _ drepo.MarketStream = (*Client)(nil)

type Option func(*Client)

func WithReconnectDelay(d time.Duration) Option { return func(c *Client) { c.reconnectDelay = d } }
func WithPingInterval(d time.Duration) Option   { return func(c *Client) { c.pingInterval = d } }
func WithLogger(l *applogger.Logger) Option     { return func(c *Client) { c.logger = l } }

// New creates a stream for the given symbols.
func New(apiKey, websocketURL string, symbols []string, opts ...Option) *Client {
	syms := make([]string, 0, len(symbols))
	for _, s := range symbols {
		syms = append(syms, util.NormalizeSymbol(s))
	}
	c := &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		symbols:        syms,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		logger:         applogger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.websocketURL)
	if err != nil {
		return fmt.Errorf("finnhub url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()
	c.logger.Info("finnhub: connected", applogger.Int("symbols", len(c.symbols)))
	return nil
}

// Subscribe subscribes to configured symbols.
func (c *Client) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected {
		return errors.New("finnhub not connected")
	}
	for _, s := range c.symbols {
		msg := map[string]string{"type": "subscribe", "symbol": s}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", s, err)
		}
	}
	c.logger.Info("finnhub: subscribed", applogger.Strings("symbols", c.symbols))
	return nil
}

type fhTrade struct {
	S string          `json:"s"`
	P decimal.Decimal `json:"p"`
	V decimal.Decimal `json:"v"`
	T int64           `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
	Msg  string    `json:"msg"`
}

// decodeFrame turns a websocket frame into trades. Pings and other
// non-trade frames yield nothing; "error" frames yield an error.
func decodeFrame(b []byte) ([]*models.Trade, error) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, nil
	}
	switch m.Type {
	case "trade":
	case "error":
		return nil, fmt.Errorf("finnhub: %s", m.Msg)
	default:
		return nil, nil
	}
	out := make([]*models.Trade, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Trade{
			Symbol:    d.S,
			Price:     d.P,
			Volume:    d.V,
			Timestamp: time.UnixMilli(d.T),
		})
	}
	return out, nil
}

// Read streams Trade events and errors. Both channels close when the
// connection fails or ctx is done.
func (c *Client) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- errors.New("finnhub conn nil")
		close(errs)
		close(trades)
		return trades, errs
	}

	done := make(chan struct{})
	go c.pingLoop(ctx, conn, done)

	go func() {
		defer close(trades)
		defer close(errs)
		defer close(done)
		for {
			if ctx.Err() != nil {
				return
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("finnhub read: %w", err)
				}
				return
			}
			batch, err := decodeFrame(b)
			if err != nil {
				c.logger.Warn("finnhub frame", applogger.Error(err))
				continue
			}
			for _, t := range batch {
				select {
				case trades <- t:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return trades, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				c.logger.Debug("finnhub ping", applogger.Error(err))
			}
		}
	}
}

// Reconnect closes, waits reconnectDelay and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

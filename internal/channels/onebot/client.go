// Package onebot is the OneBot v11 forward-WebSocket adapter. It receives
// chat events, performs API actions (send messages, AI voice records,
// character catalog lookups) and renders reply chains.
package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

const (
	defaultReconnectInterval = 5 * time.Second
	defaultCallTimeout       = 10 * time.Second
	handshakeTimeout         = 10 * time.Second
	pingInterval             = 30 * time.Second
	pongWait                 = 75 * time.Second
	writeWait                = 10 * time.Second
)

// ErrNotConnected is returned by Call while no WebSocket is open.
var ErrNotConnected = errors.New("onebot: websocket not connected")

// Config configures a Client.
type Config struct {
	WSURL             string
	AccessToken       string
	ReconnectInterval time.Duration // default 5s; minimum 1s
	ActionRate        float64       // actions per second, <= 0 means unlimited
}

// EventHandler receives every non-response frame. It runs on its own goroutine.
type EventHandler func(raw []byte)

type apiRequest struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

type apiResponse struct {
	Status  string          `json:"status"`
	RetCode json.RawMessage `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Echo    json.RawMessage `json:"echo"`
}

// Client holds one forward WebSocket connection to a OneBot implementation
// and reconnects when it drops.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
	onEvent EventHandler

	mu   sync.Mutex
	conn *websocket.Conn

	writeMu sync.Mutex

	waitMu  sync.Mutex
	waiters map[string]chan apiResponse

	selfID atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a client. Start opens the connection.
func NewClient(cfg Config, onEvent EventHandler) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.ReconnectInterval < time.Second {
		cfg.ReconnectInterval = time.Second
	}
	c := &Client{
		cfg:     cfg,
		onEvent: onEvent,
		waiters: make(map[string]chan apiResponse),
	}
	c.SetActionRate(cfg.ActionRate)
	return c
}

// SetActionRate changes the outbound action pacing at runtime.
func (c *Client) SetActionRate(perSec float64) {
	if perSec <= 0 {
		c.mu.Lock()
		c.limiter = nil
		c.mu.Unlock()
		return
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	c.mu.Lock()
	c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	c.mu.Unlock()
}

// SelfID is the bot's own account id as reported by the last event (0 until known).
func (c *Client) SelfID() int64 { return c.selfID.Load() }

// Start connects and keeps the connection alive until ctx is cancelled or
// Stop is called. A failed first dial is retried in the background.
func (c *Client) Start(ctx context.Context) error {
	if c.cfg.WSURL == "" {
		return fmt.Errorf("onebot: ws url not configured")
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("onebot: initial connection failed, will retry", "url", c.cfg.WSURL, "error", err)
	}

	c.wg.Add(1)
	go c.reconnectLoop()
	return nil
}

// Stop closes the connection and waits for background goroutines.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	c.failPending(ErrNotConnected)
	slog.Info("onebot: stopped")
}

// Connected reports whether a WebSocket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	conn, _, err := dialer.DialContext(c.ctx, c.cfg.WSURL, header)
	if err != nil {
		return err
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("onebot: connected", "url", c.cfg.WSURL)

	c.wg.Add(2)
	go c.listen(conn)
	go c.pinger(conn)
	return nil
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.ReconnectInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.Connected() {
				continue
			}
			slog.Info("onebot: reconnecting", "url", c.cfg.WSURL)
			if err := c.connect(); err != nil {
				slog.Warn("onebot: reconnect failed", "error", err)
			}
		}
	}
}

func (c *Client) pinger(conn *websocket.Conn) {
	defer c.wg.Done()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				slog.Debug("onebot: ping failed", "error", err)
				return
			}
		}
	}
}

func (c *Client) listen(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				slog.Warn("onebot: read failed, connection dropped", "error", err)
			}
			c.dropConn(conn)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var probe struct {
			Echo   json.RawMessage `json:"echo"`
			SelfID json.RawMessage `json:"self_id"`
		}
		if err := json.Unmarshal(data, &probe); err != nil {
			slog.Debug("onebot: ignoring non-JSON frame", "len", len(data))
			continue
		}
		if len(probe.Echo) > 0 && string(probe.Echo) != "null" {
			c.dispatchResponse(data)
			continue
		}
		if id, err := parseJSONInt64(probe.SelfID); err == nil && id != 0 {
			c.selfID.Store(id)
		}
		if c.onEvent != nil {
			go c.onEvent(data)
		}
	}
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
	c.failPending(ErrNotConnected)
}

func (c *Client) dispatchResponse(data []byte) {
	var resp apiResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Debug("onebot: malformed api response", "error", err)
		return
	}
	echo := jsonString(resp.Echo)

	c.waitMu.Lock()
	waiter := c.waiters[echo]
	delete(c.waiters, echo)
	c.waitMu.Unlock()

	if waiter == nil {
		slog.Debug("onebot: response for unknown echo", "echo", echo)
		return
	}
	waiter <- resp
}

// failPending wakes every in-flight call with a synthetic failure.
func (c *Client) failPending(err error) {
	c.waitMu.Lock()
	waiters := c.waiters
	c.waiters = make(map[string]chan apiResponse)
	c.waitMu.Unlock()

	for _, w := range waiters {
		w <- apiResponse{Status: "failed", Message: err.Error()}
	}
}

// Call performs an API action and returns its data payload. The call honours
// ctx's deadline (defaulting to 10s); expiry yields platform.ErrRequestTimeout.
// A non-ok status yields a *platform.SendError.
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
		defer cancel()
	}

	c.mu.Lock()
	conn := c.conn
	limiter := c.limiter
	c.mu.Unlock()
	if conn == nil {
		return nil, &platform.SendError{Action: action, Err: ErrNotConnected}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("onebot %s: %w", action, err)
			}
			// The wait would outlast the deadline.
			return nil, fmt.Errorf("onebot %s: rate limited: %w", action, platform.ErrRequestTimeout)
		}
	}

	echo := uuid.NewString()
	waiter := make(chan apiResponse, 1)
	c.waitMu.Lock()
	c.waiters[echo] = waiter
	c.waitMu.Unlock()
	defer func() {
		c.waitMu.Lock()
		delete(c.waiters, echo)
		c.waitMu.Unlock()
	}()

	payload, err := json.Marshal(apiRequest{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("onebot: marshal %s: %w", action, err)
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, payload)
	c.writeMu.Unlock()
	if err != nil {
		return nil, &platform.SendError{Action: action, Err: err}
	}
	slog.Debug("onebot: action sent", "action", action, "echo", echo)

	select {
	case resp := <-waiter:
		if resp.Status != "ok" && resp.Status != "async" {
			return nil, &platform.SendError{Action: action, Err: responseError(resp)}
		}
		return resp.Data, nil
	case <-ctx.Done():
		return nil, c.ctxError(ctx, action, ctx.Err())
	}
}

func (c *Client) ctxError(ctx context.Context, action string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("onebot %s: %w", action, platform.ErrRequestTimeout)
	}
	return fmt.Errorf("onebot %s: %w", action, err)
}

func responseError(resp apiResponse) error {
	msg := resp.Wording
	if msg == "" {
		msg = resp.Message
	}
	code, _ := parseJSONInt64(resp.RetCode)
	if msg == "" {
		return fmt.Errorf("status %q, retcode %d", resp.Status, code)
	}
	return fmt.Errorf("status %q, retcode %d: %s", resp.Status, code, msg)
}

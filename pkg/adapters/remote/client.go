package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aretw0/jot/pkg/adapters/hub"
	"github.com/aretw0/jot/pkg/core"
)

// Client defaults.
const (
	DefaultDialTimeout  = 10 * time.Second
	DefaultReconnectMin = 250 * time.Millisecond
	DefaultReconnectMax = 10 * time.Second
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Token        string
	Logger       *slog.Logger
	Dialer       *websocket.Dialer
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Client is a core.Store backed by a remote Server. It reconnects on its own;
// while disconnected, writes fail with core.ErrUnavailable and subscribers keep
// the last snapshot until the server sends a fresh one.
type Client struct {
	url string
	cfg ClientConfig
	log *slog.Logger
	hub *hub.Hub

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	conn       *websocket.Conn
	pending    map[string]chan Frame
	connects   int
	lastErr    string
	closed     bool
	connWrite  sync.Mutex
	closeOnce  sync.Once
	connReady  chan struct{}
	readyClose sync.Once
}

// Dial connects to the /sync endpoint at rawURL (ws:// or wss://). The first
// connection is made before Dial returns so a bad address or token is reported
// right away; later disconnects are retried in the background.
func Dial(ctx context.Context, rawURL string, cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = DefaultReconnectMax
	}

	u, err := syncURL(rawURL)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		url:       u,
		cfg:       cfg,
		log:       cfg.Logger,
		hub:       hub.New(cfg.Logger),
		ctx:       runCtx,
		cancel:    cancel,
		done:      make(chan struct{}),
		pending:   make(map[string]chan Frame),
		connReady: make(chan struct{}),
	}

	conn, err := c.connect(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	go c.run(conn)
	return c, nil
}

// syncURL points rawURL at the sync endpoint unless a path is already given.
func syncURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/sync"
	}
	return u.String(), nil
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, resp, err := c.cfg.Dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, core.NewStoreError(core.OpSubscribe, "", core.ErrUnauthorized)
		}
		return nil, core.NewStoreError(core.OpSubscribe, "", fmt.Errorf("%w: %v", core.ErrUnavailable, err))
	}

	c.mu.Lock()
	c.conn = conn
	c.connects++
	c.mu.Unlock()
	c.log.Debug("connected", "url", c.url)
	return conn, nil
}

// run serves conn and reconnects with exponential backoff until Close.
func (c *Client) run(conn *websocket.Conn) {
	defer close(c.done)

	backoff := c.cfg.ReconnectMin
	for {
		started := time.Now()
		err := c.serve(conn)
		c.disconnected(err)
		if c.ctx.Err() != nil {
			return
		}
		if time.Since(started) > c.cfg.ReconnectMax {
			backoff = c.cfg.ReconnectMin
		}

		for {
			c.log.Debug("reconnecting", "in", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.cfg.ReconnectMax)

			conn, err = c.connect(c.ctx)
			if err == nil {
				break
			}
			c.setLastErr(err)
			c.log.Warn("reconnect failed", "error", err)
		}
	}
}

// serve reads frames until the connection fails.
func (c *Client) serve(conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	go c.pingLoop(ctx, conn)

	pongWait := 2 * c.cfg.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
	})

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch f.Type {
		case FrameSnapshot:
			c.hub.Publish(f.Notes)
			c.readyClose.Do(func() { close(c.connReady) })
		case FrameResponse:
			c.mu.Lock()
			ch, ok := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()
			if ok {
				ch <- f
			}
		default:
			c.log.Debug("ignoring frame", "type", f.Type)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(c.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

// disconnected fails every in-flight request.
func (c *Client) disconnected(err error) {
	c.mu.Lock()
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan Frame)
	if err != nil && c.ctx.Err() == nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if c.ctx.Err() == nil {
		c.log.Warn("disconnected", "error", err, "failed_requests", len(pending))
	}
}

func (c *Client) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// call sends a request and waits for its response.
func (c *Client) call(ctx context.Context, f Frame) (Frame, error) {
	f.Type = FrameRequest
	f.ID = uuid.NewString()
	ch := make(chan Frame, 1)

	c.mu.Lock()
	conn := c.conn
	if c.closed || conn == nil {
		c.mu.Unlock()
		return Frame{}, core.ErrUnavailable
	}
	c.pending[f.ID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, f.ID)
		c.mu.Unlock()
	}()

	c.connWrite.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := conn.WriteJSON(f)
	c.connWrite.Unlock()
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %v", core.ErrUnavailable, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Frame{}, fmt.Errorf("%w: connection lost", core.ErrUnavailable)
		}
		return resp, resp.Error.err()
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Subscribe delivers the server's snapshots. After a reconnect the server's
// first snapshot resynchronizes the subscriber.
func (c *Client) Subscribe(ctx context.Context, fn func([]core.Note)) (core.Unsubscribe, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, core.NewStoreError(core.OpSubscribe, "", core.ErrUnavailable)
	}
	return c.hub.Subscribe(ctx, fn), nil
}

func (c *Client) Create(ctx context.Context, f core.CreateFields) (string, error) {
	resp, err := c.call(ctx, Frame{Op: core.OpCreate, Body: f.Body, CreatedAt: f.CreatedAt})
	if err != nil {
		return "", core.NewStoreError(core.OpCreate, "", err)
	}
	return resp.NoteID, nil
}

func (c *Client) MergeUpdate(ctx context.Context, id string, f core.UpdateFields) error {
	_, err := c.call(ctx, Frame{Op: core.OpUpdate, NoteID: id, Body: f.Body, UpdatedAt: f.UpdatedAt})
	return core.NewStoreError(core.OpUpdate, id, err)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.call(ctx, Frame{Op: core.OpDelete, NoteID: id})
	return core.NewStoreError(core.OpDelete, id, err)
}

// WaitReady blocks until the first snapshot has arrived.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.connReady:
		return nil
	case <-c.done:
		return core.ErrUnavailable
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects and stops reconnecting.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()

		if conn != nil {
			c.connWrite.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.connWrite.Unlock()
		}
		c.cancel()
		<-c.done
		c.hub.Close()
	})
	return nil
}

// ClientState exposes internal state for observability.
type ClientState struct {
	URL       string `json:"url"`
	Connected bool   `json:"connected"`
	Connects  int    `json:"connects"`
	Pending   int    `json:"pending"`
	LastError string `json:"last_error,omitempty"`
}

// State implements introspection.Introspectable.
func (c *Client) State() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientState{
		URL:       c.url,
		Connected: c.conn != nil,
		Connects:  c.connects,
		Pending:   len(c.pending),
		LastError: c.lastErr,
	}
}

// ComponentType implements introspection.Component.
func (c *Client) ComponentType() string {
	return "remote-client"
}

var _ core.Store = (*Client)(nil)
var _ introspection.Introspectable = (*Client)(nil)
var _ introspection.Component = (*Client)(nil)

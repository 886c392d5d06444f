package remote

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/introspection"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/aretw0/jot/pkg/core"
)

// Server defaults.
const (
	DefaultWriteTimeout   = 10 * time.Second
	DefaultPingInterval   = 20 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Secret enables HS256 token checks on /notes and /sync when non-empty.
	Secret         []byte
	Logger         *slog.Logger
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	RequestTimeout time.Duration
}

// Server exposes a core.Store over HTTP and websocket.
type Server struct {
	store    core.Store
	cfg      ServerConfig
	log      *slog.Logger
	router   *mux.Router
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    int
	requests int
}

// NewServer creates a Server for store.
func NewServer(store core.Store, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{
		store: store,
		cfg:   cfg,
		log:   cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthz)

	authed := r.NewRoute().Subrouter()
	authed.Use(s.authenticate)
	authed.Methods(http.MethodGet).Path("/notes").HandlerFunc(s.listNotes)
	authed.Methods(http.MethodGet).Path("/sync").HandlerFunc(s.sync)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		errc <- httpServer.ListenAndServe()
	}()
	s.log.Info("serving notes", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		_ = httpServer.Close()
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(handler, w, r)
		s.log.Info("handled", "method", r.Method, "path", r.URL.Path, "duration", m.Duration, "status", m.Code)
	})
}

func (s *Server) authenticate(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.cfg.Secret) == 0 {
			handler.ServeHTTP(w, r)
			return
		}
		subject, err := verifyToken(s.cfg.Secret, requestToken(r))
		if err != nil {
			s.log.Warn("rejected request", "path", r.URL.Path, "error", err)
			writeJSON(w, http.StatusUnauthorized, toWireError(core.ErrUnauthorized))
			return
		}
		s.log.Debug("authenticated", "subject", subject)
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// listNotes answers with the store's current list. It subscribes just long
// enough to receive the first snapshot.
func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	first := make(chan []core.Note, 1)
	unsubscribe, err := s.store.Subscribe(ctx, func(notes []core.Note) {
		select {
		case first <- notes:
		default:
		}
	})
	if err != nil {
		writeJSON(w, statusFor(err), toWireError(err))
		return
	}
	defer unsubscribe()

	select {
	case notes := <-first:
		if notes == nil {
			notes = []core.Note{}
		}
		writeJSON(w, http.StatusOK, core.SortByRecency(notes))
	case <-ctx.Done():
		writeJSON(w, http.StatusGatewayTimeout, toWireError(core.ErrUnavailable))
	}
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade", "error", err)
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conns--
		s.mu.Unlock()
	}()

	sess := &session{server: s, conn: conn}
	sess.serve(r.Context())
}

// session is one websocket connection.
type session struct {
	server  *Server
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *session) serve(parent context.Context) {
	s := c.server
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	// Unblocks the read loop when the server shuts down.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	unsubscribe, err := s.store.Subscribe(ctx, func(notes []core.Note) {
		if err := c.write(Frame{Type: FrameSnapshot, Notes: notes}); err != nil {
			s.log.Debug("snapshot write failed", "error", err)
			cancel()
		}
	})
	if err != nil {
		s.log.Error("subscribe failed", "error", err)
		msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, core.Kind(err))
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.cfg.WriteTimeout))
		return
	}
	defer unsubscribe()

	var wg sync.WaitGroup
	defer wg.Wait()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.pingLoop(ctx)
	}()

	pongWait := 2 * s.cfg.PingInterval
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var f Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", "error", err)
			}
			cancel()
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if f.Type != FrameRequest {
			s.log.Debug("ignoring frame", "type", f.Type)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := c.handle(ctx, f)
			if err := c.write(resp); err != nil {
				s.log.Debug("response write failed", "id", f.ID, "error", err)
				cancel()
			}
		}()
	}
}

func (c *session) handle(ctx context.Context, f Frame) Frame {
	s := c.server
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	resp := Frame{Type: FrameResponse, ID: f.ID, Op: f.Op, NoteID: f.NoteID}
	var err error
	switch f.Op {
	case core.OpCreate:
		resp.NoteID, err = s.store.Create(ctx, core.CreateFields{Body: f.Body, CreatedAt: f.CreatedAt})
	case core.OpUpdate:
		err = s.store.MergeUpdate(ctx, f.NoteID, core.UpdateFields{Body: f.Body, UpdatedAt: f.UpdatedAt})
	case core.OpDelete:
		err = s.store.Delete(ctx, f.NoteID)
	default:
		err = errors.New("unknown op " + f.Op)
	}
	if err != nil {
		s.log.Warn("request failed", "op", f.Op, "id", f.NoteID, "error", err)
		resp.Error = toWireError(err)
	}
	return resp
}

func (c *session) pingLoop(ctx context.Context) {
	t := time.NewTicker(c.server.cfg.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			deadline := time.Now().Add(c.server.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *session) write(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
	return c.conn.WriteJSON(f)
}

func statusFor(err error) int {
	switch core.Kind(err) {
	case "unauthorized":
		return http.StatusUnauthorized
	case "not_found":
		return http.StatusNotFound
	case "unavailable":
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ServerState exposes internal state for observability.
type ServerState struct {
	Connections int  `json:"connections"`
	Requests    int  `json:"requests"`
	Auth        bool `json:"auth"`
}

// State implements introspection.Introspectable.
func (s *Server) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerState{Connections: s.conns, Requests: s.requests, Auth: len(s.cfg.Secret) > 0}
}

// ComponentType implements introspection.Component.
func (s *Server) ComponentType() string {
	return "remote-server"
}

var _ introspection.Introspectable = (*Server)(nil)
var _ introspection.Component = (*Server)(nil)

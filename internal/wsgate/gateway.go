// Package wsgate lets WebSocket clients join the relay. Every text frame a
// client sends is one protocol line; every line the relay sends back is one
// text frame.
package wsgate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"chatrelay/internal/relay"
)

// DefaultReadLimit - largest frame accepted from a client, in bytes.
const DefaultReadLimit = 64 * 1024

// Attacher takes ownership of an established client socket.
type Attacher interface {
	Attach(ctx context.Context, sock relay.Socket) error
}

// Gateway upgrades HTTP requests to WebSocket connections and attaches them
// to the relay.
type Gateway struct {
	relay     Attacher
	upgrader  websocket.Upgrader
	readLimit int64
	logger    relay.Logger
}

// Option configures a Gateway.
type Option func(g *Gateway)

// WithLogger - attach logger for gateway events.
func WithLogger(l relay.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// WithReadLimit - overwrites DefaultReadLimit. A client exceeding it is dropped.
func WithReadLimit(limit int64) Option {
	return func(g *Gateway) {
		if limit > 0 {
			g.readLimit = limit
		}
	}
}

// New creates a gateway in front of a.
func New(a Attacher, options ...Option) *Gateway {
	g := &Gateway{
		relay: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
		},
		readLimit: DefaultReadLimit,
	}
	for _, option := range options {
		if option != nil {
			option(g)
		}
	}
	return g
}

func (g *Gateway) logPrintln(v ...interface{}) {
	if g.logger != nil {
		g.logger.Println(v...)
	}
}

// Router configures all HTTP routes of the gateway.
func (g *Gateway) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/relay", g.serveWebSocket).Methods(http.MethodGet)
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "chatrelay is running")
}

func (g *Gateway) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logPrintln("ERR", "WebSocket upgrade from", r.RemoteAddr, "failed:", err)
		return
	}
	ws.SetReadLimit(g.readLimit)
	if err := g.relay.Attach(r.Context(), newSocket(ws)); err != nil {
		g.logPrintln("ERR", "Could not attach", r.RemoteAddr+":", err)
		ws.Close()
		return
	}
	g.logPrintln("WebSocket client from", r.RemoteAddr)
}

// ListenAndServe serves the gateway on addr until ctx is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		g.logPrintln("WebSocket gateway listening on", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("wsgate: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("wsgate: shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("wsgate: %w", err)
	}
	return nil
}

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voxcore/internal/transport"
)

const browserSampleRate = 16000

// WebSocketServer serves the browser-facing /ws endpoint, mirroring the
// teacher's server.Server.
type WebSocketServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	deps       Deps
	waiter     connWaiter
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewWebSocket builds a WebSocketServer bound to deps.Process.Port.
func NewWebSocket(deps Deps) *WebSocketServer {
	origins := make(map[string]bool, len(deps.Process.AllowedOrigins))
	for _, o := range deps.Process.AllowedOrigins {
		origins[o] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketServer{
		deps:     deps,
		upgrader: transport.NewUpgrader(origins),
		ctx:      ctx,
		cancel:   cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", deps.Process.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening for connections. It blocks until Shutdown closes
// the listener.
func (s *WebSocketServer) Start() error {
	log.Printf("server: websocket listening on %s", s.httpServer.Addr)
	log.Printf("server: websocket endpoint ws://localhost%s/ws", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and waits (bounded by ctx) for
// in-flight calls to finish.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	log.Println("server: shutting down websocket server")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.waiter.wait(ctx)
	return err
}

func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	holder := &traceHolder{}
	adapter := transport.NewWebSocketAdapter(conn, "", browserSampleRate, holder.current)
	s.waiter.track(func() {
		runCall(s.ctx, s.deps, adapter, false, holder)
	})
}

func (s *WebSocketServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/room4-2/voxcore/internal/transport"
)

// TwilioServer serves Twilio's Media Streams endpoints (/stream, /voice),
// mirroring the teacher's server.WebsocketTwilio.
type TwilioServer struct {
	httpServer *http.Server
	upgrader   websocket.Upgrader
	deps       Deps
	waiter     connWaiter
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewTwilio builds a TwilioServer. When running standalone ("twilio"
// ServerType) it binds Process.Port; otherwise ("both") it binds
// Process.TwilioPort, matching the teacher's port-selection rule.
func NewTwilio(deps Deps) *TwilioServer {
	port := deps.Process.TwilioPort
	if deps.Process.ServerType == "twilio" {
		port = deps.Process.Port
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &TwilioServer{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:    65536,
			WriteBufferSize:   65536,
			EnableCompression: false,
			CheckOrigin:       func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/voice", s.handleVoice)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return s
}

// Start begins listening for connections. It blocks until Shutdown closes
// the listener.
func (s *TwilioServer) Start() error {
	log.Printf("server: twilio listening on %s", s.httpServer.Addr)
	log.Printf("server: twilio stream endpoint ws://localhost%s/stream", s.httpServer.Addr)
	log.Printf("server: twilio voice endpoint http://localhost%s/voice", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and waits (bounded by ctx) for
// in-flight calls to finish.
func (s *TwilioServer) Shutdown(ctx context.Context) error {
	log.Println("server: shutting down twilio server")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()
	s.waiter.wait(ctx)
	return err
}

func (s *TwilioServer) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: twilio upgrade failed: %v", err)
		return
	}

	holder := &traceHolder{}
	adapter := transport.NewTwilioAdapter(conn, "", holder.current)
	s.waiter.track(func() {
		runCall(s.ctx, s.deps, adapter, true, holder)
	})
}

func (s *TwilioServer) handleVoice(w http.ResponseWriter, r *http.Request) {
	wsURL := "wss://" + r.Host + "/stream"
	xmlResponse := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
	<Say>Connecting to the assistant now.</Say>
	<Connect>
		<Stream url="%s" />
	</Connect>
</Response>`, wsURL)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xmlResponse))
}

func (s *TwilioServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok","server":"twilio"}`)
}

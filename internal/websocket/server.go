package websocket

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"feedsim/internal/exchange"
	"feedsim/internal/factory"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// CloseReasonUnknownChannel is sent when a client asks for an unrouted path
	CloseReasonUnknownChannel = "unsupported channel path"

	closeGracePeriod = time.Second
)

// Options configure the mock exchange server
type Options struct {
	Addr         string
	Interval     time.Duration
	WriteTimeout time.Duration
	Routes       []factory.Route
}

// Server streams simulated exchange order books over websocket. Every
// connection gets its own stream state; nothing is shared between them.
type Server struct {
	addr         string
	interval     time.Duration
	writeTimeout time.Duration
	router       *factory.Router
	upgrader     websocket.Upgrader
	handler      http.Handler

	clients    map[*websocket.Conn]string
	clientsMux sync.RWMutex
	closed     bool
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer validates the routes and builds the HTTP handler
func NewServer(opts Options) (*Server, error) {
	router, err := factory.NewRouter(opts.Routes)
	if err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	s := &Server{
		addr:         opts.Addr,
		interval:     opts.Interval,
		writeTimeout: opts.WriteTimeout,
		router:       router,
		clients:      make(map[*websocket.Conn]string),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{"websocket"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := mux.NewRouter()
	for _, path := range router.Paths() {
		cfg, _ := router.Resolve(path)
		r.HandleFunc(path, s.handleStream(cfg))
	}
	r.NotFoundHandler = http.HandlerFunc(s.handleUnknownChannel)
	s.handler = r

	return s, nil
}

// Handler returns the HTTP handler serving all channel paths
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until Close
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Close
func (s *Server) Serve(ln net.Listener) error {
	s.clientsMux.Lock()
	s.httpServer = &http.Server{Handler: s.handler}
	srv := s.httpServer
	s.clientsMux.Unlock()

	log.Printf("Mock exchange listening on %s (channels: %s)", ln.Addr(), strings.Join(s.router.Paths(), ", "))
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops accepting, closes every live connection and waits for their loops to end
func (s *Server) Close() error {
	s.clientsMux.Lock()
	s.closed = true
	srv := s.httpServer
	for conn := range s.clients {
		conn.Close()
	}
	s.clientsMux.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeGracePeriod)
		defer cancel()
		err = srv.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// ActiveConnections returns the number of open streaming connections
func (s *Server) ActiveConnections() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

func (s *Server) handleUnknownChannel(w http.ResponseWriter, r *http.Request) {
	log.Printf("Unsupported path %s from %s, closing connection", r.URL.Path, r.RemoteAddr)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, CloseReasonUnknownChannel)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout)); err != nil {
		log.Printf("Error sending close message: %v", err)
		return
	}

	// wait for the client's close reply, discarding anything sent before it
	conn.SetReadDeadline(time.Now().Add(s.writeTimeout))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleStream(cfg factory.StreamConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream, err := factory.NewStream(cfg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[%s] WebSocket upgrade error: %v", cfg.Name, err)
			return
		}

		id := uuid.NewString()
		s.clientsMux.Lock()
		if s.closed {
			s.clientsMux.Unlock()
			log.Printf("[%s] Server closed, dropping connection from %s", cfg.Name, r.RemoteAddr)
			conn.Close()
			return
		}
		s.clients[conn] = id
		s.wg.Add(1)
		s.clientsMux.Unlock()

		log.Printf("[%s] Client %s connected from %s to %s", cfg.Name, id, r.RemoteAddr, r.URL.Path)

		defer func() {
			s.clientsMux.Lock()
			delete(s.clients, conn)
			s.clientsMux.Unlock()
			conn.Close()
			s.wg.Done()
			log.Printf("[%s] Connection closed for %s after %d messages", cfg.Name, id, stream.Count())
		}()

		s.serveStream(conn, stream, id)
	}
}

// serveStream sends one message immediately and then one per interval until
// the client goes away or a write fails. Failed writes are not retried.
func (s *Server) serveStream(conn *websocket.Conn, stream exchange.Stream, id string) {
	name := stream.GetName()
	disconnected := make(chan struct{})
	go s.drain(conn, name, id, disconnected)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-disconnected:
			return
		default:
		}

		payload, err := stream.Next(time.Now())
		if err != nil {
			log.Printf("[%s] Failed to build message for %s: %v", name, id, err)
			return
		}

		conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("[%s] Send to %s failed: %v", name, id, err)
			return
		}

		select {
		case <-disconnected:
			return
		case <-ticker.C:
		}
	}
}

// drain reads and logs inbound client messages until the connection closes
func (s *Server) drain(conn *websocket.Conn, name exchange.ExchangeName, id string, disconnected chan<- struct{}) {
	defer close(disconnected)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] Client %s disconnected cleanly", name, id)
			} else {
				log.Printf("[%s] Client %s disconnected with error: %v", name, id, err)
			}
			return
		}
		log.Printf("[%s] Received message from client %s: %s", name, id, message)
	}
}

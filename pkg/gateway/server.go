package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/quiver/internal/observability"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a client may stay silent before the read loop
	// gives up on it.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so a healthy client always
	// has a ping to answer.
	pingPeriod = 50 * time.Second
)

// Server accepts WebSocket observers and serves the metrics endpoint. Each
// connection must answer an HMAC challenge before it receives progress
// events.
type Server struct {
	addr          string
	server        *http.Server
	upgrader      websocket.Upgrader
	clients       *Registry
	authenticator *Authenticator
	hub           *Hub
	logger        zerolog.Logger

	shutdownMu     sync.RWMutex
	isShuttingDown bool
	clientWG       sync.WaitGroup
}

// Config holds gateway server configuration.
type Config struct {
	Host         string `json:"host" mapstructure:"host"`
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// NewServer creates a gateway server. The returned server's Hub is the
// progress reporter to hand to the tool manager.
func NewServer(cfg Config, logger zerolog.Logger) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid gateway port: %d", cfg.Port)
	}
	if cfg.SharedSecret == "" {
		return nil, fmt.Errorf("gateway shared secret is required")
	}

	clients := NewRegistry()
	componentLogger := logger.With().Str("component", "gateway").Logger()

	return &Server{
		addr:          net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		clients:       clients,
		authenticator: NewAuthenticator(cfg.SharedSecret),
		hub:           NewHub(clients, logger),
		logger:        componentLogger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Hub returns the progress hub backed by this server's clients.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Clients returns the client registry.
func (s *Server) Clients() *Registry {
	return s.clients
}

// Start begins listening. It returns once the listener is running.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/metrics", observability.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen failed: %w", err)
	}

	s.server = &http.Server{Handler: mux}
	s.logger.Info().Str("addr", s.addr).Msg("Starting progress gateway")

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Gateway server error")
		}
	}()

	return nil
}

// Stop broadcasts shutdown, closes every connection, and stops the listener.
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down progress gateway")

	s.hub.Broadcast(EventServerShutdown, map[string]interface{}{
		"message": "server is shutting down",
	})

	for _, client := range s.clients.All() {
		client.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.clientWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn().Msg("Timed out waiting for client handlers to exit")
	}

	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown gateway server: %w", err)
	}

	s.logger.Info().Msg("Progress gateway stopped")
	return nil
}

// handleWebSocket upgrades a connection, challenges it, and starts its read
// loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := &Client{
		ID:           clientID,
		Conn:         conn,
		ConnectedAt:  time.Now(),
		LastActivity: time.Now(),
		IPAddress:    r.RemoteAddr,
	}
	s.clients.Add(client)

	s.logger.Info().
		Str("client_id", clientID).
		Str("ip", r.RemoteAddr).
		Msg("Observer connected")

	if err := s.sendChallenge(client); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to send auth challenge")
		conn.Close()
		s.clients.Remove(clientID)
		return
	}

	s.clientWG.Add(1)
	go s.handleClient(client)
}

func (s *Server) sendChallenge(client *Client) error {
	challenge, err := s.authenticator.Challenge()
	if err != nil {
		return err
	}
	client.Challenge = challenge
	return client.WriteJSON(AuthChallenge{Event: "auth.challenge", Challenge: challenge})
}

// handleClient runs the read loop for one connection. Observers only ever
// send the auth response; everything after that is pong traffic.
func (s *Server) handleClient(client *Client) {
	defer s.clientWG.Done()
	defer func() {
		client.Conn.Close()
		s.clients.Remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Observer disconnected")
	}()

	client.Conn.SetReadLimit(4096)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		s.clients.UpdateActivity(client.ID)
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.keepalive(client, stopPing)

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("client_id", client.ID).Msg("Read error")
			}
			return
		}
		s.clients.UpdateActivity(client.ID)

		if client.Authenticated {
			continue
		}

		var resp AuthResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("Malformed auth response")
			return
		}

		result := s.authenticator.authenticate(client, resp.Signature)
		if err := client.WriteJSON(result); err != nil {
			return
		}
		if result.Success {
			s.logger.Info().Str("client_id", client.ID).Msg("Observer authenticated")
			continue
		}
		observability.RecordSecurityAudit(context.Background(), "gateway_auth_failed", client.ID, "failure", map[string]interface{}{
			"remote_addr": client.Conn.RemoteAddr().String(),
			"attempts":    client.AuthAttempts,
		})
		if client.AuthAttempts >= maxAuthAttempts || client.Challenge == "" {
			return
		}
	}
}

// keepalive pings the client until the read loop ends.
func (s *Server) keepalive(client *Client, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

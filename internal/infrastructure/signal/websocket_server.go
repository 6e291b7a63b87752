package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"streamwatch/internal/core/domain"
	"streamwatch/internal/core/ports"
	"streamwatch/internal/infrastructure/middleware"
	"streamwatch/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const closeReasonInvalidToken = "invalid token"

type HubConfig struct {
	AccessToken    string
	AllowedOrigins []string

	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteTimeout time.Duration

	MaxMessageSize    int64
	MaxConnections    int     // 0 means unlimited
	MessagesPerSecond float64 // 0 disables inbound rate limiting
	Burst             int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		AllowedOrigins: []string{"*"},
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}
}

// WebSocketServer is the notification hub: it authenticates clients, sends
// each the current snapshot, answers their queries and fans transition events
// out to every open connection.
type WebSocketServer struct {
	cfg       HubConfig
	snapshots ports.SnapshotReader
	watchlist ports.WatchlistService

	registry *Registry
	upgrader websocket.Upgrader

	metrics ports.Metrics
	logger  *zap.SugaredLogger
}

func NewWebSocketServer(
	cfg HubConfig,
	snapshots ports.SnapshotReader,
	watchlist ports.WatchlistService,
	metrics ports.Metrics,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	defaults := DefaultHubConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaults.PongTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	s := &WebSocketServer{
		cfg:       cfg,
		snapshots: snapshots,
		watchlist: watchlist,
		registry:  NewRegistry(),
		metrics:   metrics,
		logger:    logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin:     s.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return s
}

// Run broadcasts every event received on events until ctx is cancelled or
// events is closed, then closes all clients.
func (s *WebSocketServer) Run(ctx context.Context, events <-chan domain.TransitionEvent) {
	defer s.registry.CloseAll(websocket.CloseGoingAway, "server shutting down")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			s.Broadcast(event)
		}
	}
}

// Broadcast sends one transition to every open client. A client whose write
// fails is closed and removed without affecting the others.
func (s *WebSocketServer) Broadcast(event domain.TransitionEvent) {
	data, err := json.Marshal(transitionMessage(event))
	if err != nil {
		s.logger.Errorw("failed to encode transition", "login", event.Login(), "error", err)
		return
	}
	prepared, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		s.logger.Errorw("failed to prepare transition", "login", event.Login(), "error", err)
		return
	}

	delivered := 0
	for _, client := range s.registry.Snapshot() {
		if !client.IsOpen() {
			continue
		}
		if err := client.sendPrepared(prepared); err != nil {
			s.logger.Infow("dropping client after failed write", "client_id", client.ID, "error", err)
			s.disconnect(client, websocket.CloseInternalServerErr, "write failed")
			continue
		}
		delivered++
	}

	s.logger.Debugw("transition broadcast",
		"login", event.Login(),
		"kind", event.Kind,
		"clients", delivered,
	)
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	if !s.authorized(r) {
		s.metrics.RecordRejectedConnection()
		s.logger.Warnw("rejected connection with invalid token", "remote_addr", r.RemoteAddr)
		reject(conn, websocket.ClosePolicyViolation, closeReasonInvalidToken, s.cfg.WriteTimeout)
		return
	}

	if s.cfg.MaxConnections > 0 && s.registry.Len() >= s.cfg.MaxConnections {
		s.metrics.RecordRejectedConnection()
		s.logger.Warnw("rejected connection, hub is full", "limit", s.cfg.MaxConnections)
		reject(conn, websocket.CloseTryAgainLater, "too many connections", s.cfg.WriteTimeout)
		return
	}

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}
	client := newClient(uuid.NewString(), conn, s.cfg.WriteTimeout, limiter)

	// Registration and the initial snapshot share the write lock, so the
	// snapshot is always the first frame and no later event is missed.
	client.writeMu.Lock()
	s.registry.Add(client)
	err = client.writeJSONLocked(initialStreamsMessage(s.snapshots.Snapshot()))
	client.writeMu.Unlock()

	s.metrics.ClientConnected()
	defer s.disconnect(client, websocket.CloseNormalClosure, "")
	if err != nil {
		s.logger.Infow("failed to send initial snapshot", "client_id", client.ID, "error", err)
		return
	}
	s.logger.Infow("client connected", "client_id", client.ID, "remote_addr", r.RemoteAddr)

	if s.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			select {
			case messageChan <- data:
			case <-done:
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		select {
		case data := <-messageChan:
			if !client.allow() {
				s.logger.Warnw("inbound message dropped by rate limit", "client_id", client.ID)
				continue
			}
			s.handleMessage(ctx, client, data)

		case <-pingTicker.C:
			if err := client.ping(); err != nil {
				s.logger.Infow("error sending ping", "client_id", client.ID, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message from client", "client_id", client.ID, "error", err)
			}
			return
		}
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, client *Client, data []byte) {
	msg, err := DecodeInbound(data)
	if err != nil {
		var protoErr *domain.ProtocolError
		if errors.As(err, &protoErr) {
			s.metrics.RecordInboundMessage("malformed")
		}
		s.logger.Warnw("ignoring malformed message", "client_id", client.ID, "error", err)
		return
	}

	switch m := msg.(type) {
	case TextMessage:
		s.metrics.RecordInboundMessage(string(TypeMessage))
		s.logger.Infow("message from client", "client_id", client.ID, "text", m.Text)

	case AskStreams:
		s.metrics.RecordInboundMessage(string(TypeAskStreams))
		s.reply(client, onlineStreamsMessage(s.snapshots.Snapshot().OnlineStreams()))

	case AskStream:
		s.metrics.RecordInboundMessage(string(TypeAskStream))
		status, ok := s.snapshots.Snapshot().Lookup(m.Login)
		if !ok {
			s.logger.Infow("requested stream not online", "client_id", client.ID, "login", m.Login)
			s.reply(client, textMessage("stream not found: "+m.Login))
			return
		}
		s.reply(client, onlineStreamsMessage([]domain.LiveStatus{status}))

	case AddStream:
		s.metrics.RecordInboundMessage(string(TypeAddStream))
		spanCtx, span := tracing.TraceWebSocketMessage(ctx, string(TypeAddStream), client.ID)
		defer span.End()
		if _, err := s.watchlist.Add(spanCtx, m.Login); err != nil {
			tracing.RecordError(spanCtx, err)
			s.logger.Infow("ADD_STREAM rejected", "client_id", client.ID, "login", m.Login, "error", err)
			s.reply(client, textMessage(err.Error()))
		}

	case UnknownMessage:
		s.metrics.RecordInboundMessage("unknown")
		s.logger.Warnw("unhandled message type", "client_id", client.ID, "type", m.Type)
	}
}

func (s *WebSocketServer) reply(client *Client, msg OutboundMessage) {
	if err := client.SendJSON(msg); err != nil {
		s.logger.Infow("failed to reply to client", "client_id", client.ID, "error", err)
		s.disconnect(client, websocket.CloseInternalServerErr, "write failed")
	}
}

func (s *WebSocketServer) disconnect(client *Client, code int, reason string) {
	client.Close(code, reason)
	if s.registry.Remove(client.ID) {
		s.metrics.ClientDisconnected()
		s.logger.Infow("client disconnected", "client_id", client.ID)
	}
}

// authorized checks the token query parameter, or failing that a bearer
// header, against the configured access token.
func (s *WebSocketServer) authorized(r *http.Request) bool {
	presented := r.URL.Query().Get("token")
	if presented == "" {
		presented, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	return presented != "" && middleware.TokenMatches(presented, s.cfg.AccessToken)
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, allowed) {
			return true
		}
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

func reject(conn *websocket.Conn, code int, reason string, timeout time.Duration) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(timeout))
	conn.Close()
}

func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.registry.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ConnectedClients returns the number of registered clients.
func (s *WebSocketServer) ConnectedClients() int {
	return s.registry.Len()
}

var _ ports.WebSocketHandler = (*WebSocketServer)(nil)

package hub

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hexwave/roomplay/internal/connstate"
	"github.com/hexwave/roomplay/internal/room"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/auth"
	"github.com/hexwave/roomplay/internal/v1/logging"
	"github.com/hexwave/roomplay/internal/v1/metrics"
	"github.com/hexwave/roomplay/internal/v1/ratelimit"
)

// hubKindMultiplayer is this package's only types.HubKind — spectator/replay
// hubs are a separate Non-goal-scoped transport the spec does not require.
const hubKindMultiplayer types.HubKind = "multiplayer"

// Hub is the central WebSocket coordinator: it authenticates connections,
// registers them against the Connection Limiter, and routes their messages
// into the Room Coordinator. Grounded on the teacher's session.Hub
// (ServeWs, origin-checked upgrader, buffer pool) with room/participant
// registries replaced by room.Broadcaster's group bookkeeping.
type Hub struct {
	coordinator *room.Coordinator
	conns       *connstate.Registry
	validator      auth.TokenValidator
	limiter        *ratelimit.RateLimiter // optional; nil disables WS-specific rate limiting
	allowedOrigins []string
	bufferPool     websocket.BufferPool

	mu        sync.RWMutex
	byConn    map[types.ConnectionIdType]*Client
	roomGroup map[types.RoomIdType]map[types.UserIdType]*Client
	gameplay  map[types.RoomIdType]map[types.UserIdType]*Client
	personal  map[types.UserIdType]*Client
}

// NewHub wires the Hub against its collaborators. limiter may be nil.
// coordinator is often nil at construction time since room.NewCoordinator
// itself needs the Hub as its Broadcaster — call SetCoordinator once both
// exist, before serving any connection.
func NewHub(coordinator *room.Coordinator, conns *connstate.Registry, validator auth.TokenValidator, limiter *ratelimit.RateLimiter, allowedOrigins []string) *Hub {
	return &Hub{
		coordinator:    coordinator,
		conns:          conns,
		validator:      validator,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
		bufferPool:     &sync.Pool{},
		byConn:         make(map[types.ConnectionIdType]*Client),
		roomGroup:      make(map[types.RoomIdType]map[types.UserIdType]*Client),
		gameplay:       make(map[types.RoomIdType]map[types.UserIdType]*Client),
		personal:       make(map[types.UserIdType]*Client),
	}
}

// SetCoordinator completes construction for the common case where the Hub
// must exist before the Coordinator that depends on it as a Broadcaster.
func (h *Hub) SetCoordinator(coordinator *room.Coordinator) {
	h.coordinator = coordinator
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		WriteBufferPool: h.bufferPool,
	}
}

// ServeWs authenticates the caller, registers the connection against the
// Connection Limiter, upgrades to WebSocket, and starts the client's pumps.
// Grounded on session.Hub.ServeWs.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		return
	}

	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token not provided"})
		return
	}

	claims, err := h.validator.ValidateToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	userID := types.UserIdType(claims.Subject)
	tokenID := types.TokenIdType(claims.TokenId)

	ctx := c.Request.Context()
	if h.limiter != nil {
		if err := h.limiter.CheckWebSocketUser(ctx, string(userID)); err != nil {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
	}

	connID := types.ConnectionIdType(uuid.NewString())
	if err := h.conns.Connect(ctx, h, userID, tokenID, hubKindMultiplayer, connID); err != nil {
		logging.Error(ctx, "failed to register connection", zap.String("user", string(userID)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "connection registration failed"})
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(ctx, "failed to upgrade connection", zap.Error(err))
		_ = h.conns.Disconnect(ctx, userID, tokenID)
		return
	}

	client := newClient(h, conn, userID, tokenID, connID)
	h.mu.Lock()
	h.byConn[connID] = client
	h.personal[userID] = client
	h.mu.Unlock()

	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// SendDisconnectRequested implements connstate.Disconnector: the registry
// calls this when a new client instance supersedes an older one for the
// same user.
func (h *Hub) SendDisconnectRequested(ctx context.Context, userID types.UserIdType, kind types.HubKind, connID types.ConnectionIdType) {
	h.mu.RLock()
	client, ok := h.byConn[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	client.sendMessage(room.EventDisconnectRequested, nil)
	client.close()
}

// removeConnection unregisters a connection and its group memberships after
// it has disconnected. Safe to call more than once.
func (h *Hub) removeConnection(client *Client) {
	h.mu.Lock()
	delete(h.byConn, client.connID)
	if h.personal[client.userID] == client {
		delete(h.personal, client.userID)
	}
	roomID, joined := client.currentRoom()
	if joined {
		if g, ok := h.roomGroup[roomID]; ok {
			delete(g, client.userID)
		}
		if g, ok := h.gameplay[roomID]; ok {
			delete(g, client.userID)
		}
	}
	h.mu.Unlock()

	metrics.DecConnection()
}

// --- room.Broadcaster ---

func (h *Hub) BroadcastRoom(ctx context.Context, roomID types.RoomIdType, event string, payload any, excludeUserID types.UserIdType) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.roomGroup[roomID]))
	for uid, c := range h.roomGroup[roomID] {
		if uid == excludeUserID {
			continue
		}
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	data := encode(payload)
	for _, c := range clients {
		c.send(event, data)
	}
	metrics.WebsocketEvents.WithLabelValues(event, "ok").Inc()
}

func (h *Hub) BroadcastGameplay(ctx context.Context, roomID types.RoomIdType, event string, payload any) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.gameplay[roomID]))
	for _, c := range h.gameplay[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	data := encode(payload)
	for _, c := range clients {
		c.send(event, data)
	}
	metrics.WebsocketEvents.WithLabelValues(event, "ok").Inc()
}

func (h *Hub) SendToUser(ctx context.Context, userID types.UserIdType, event string, payload any) {
	h.mu.RLock()
	c, ok := h.personal[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.sendMessage(event, payload)
}

func (h *Hub) JoinRoomGroup(userID types.UserIdType, roomID types.RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.personal[userID]
	if !ok {
		return
	}
	if h.roomGroup[roomID] == nil {
		h.roomGroup[roomID] = make(map[types.UserIdType]*Client)
	}
	h.roomGroup[roomID][userID] = c
}

func (h *Hub) LeaveRoomGroup(userID types.UserIdType, roomID types.RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.roomGroup[roomID]; ok {
		delete(g, userID)
	}
}

func (h *Hub) JoinGameplayGroup(userID types.UserIdType, roomID types.RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.personal[userID]
	if !ok {
		return
	}
	if h.gameplay[roomID] == nil {
		h.gameplay[roomID] = make(map[types.UserIdType]*Client)
	}
	h.gameplay[roomID][userID] = c
}

func (h *Hub) LeaveGameplayGroup(userID types.UserIdType, roomID types.RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.gameplay[roomID]; ok {
		delete(g, userID)
	}
}

var _ room.Broadcaster = (*Hub)(nil)
var _ connstate.Disconnector = (*Hub)(nil)

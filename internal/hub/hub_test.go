package hub

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hexwave/roomplay/internal/connstate"
	"github.com/hexwave/roomplay/internal/entitystore"
	"github.com/hexwave/roomplay/internal/persistence"
	"github.com/hexwave/roomplay/internal/room"
	"github.com/hexwave/roomplay/internal/rules"
	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/auth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testValidator treats the bearer token as the user id directly, skipping
// JWT parsing entirely — this package only needs to exercise what happens
// after a token is accepted, not JWKS verification itself.
type testValidator struct{}

func (testValidator) ValidateToken(tokenString string) (*auth.CustomClaims, error) {
	claims := &auth.CustomClaims{TokenId: "token-" + tokenString}
	claims.Subject = tokenString
	return claims, nil
}

type testServer struct {
	hub   *Hub
	store *persistence.MemoryStore
	url   string
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	store := persistence.NewMemoryStore()
	rooms := entitystore.New[types.RoomIdType, *room.Room]()
	clients := entitystore.New[types.UserIdType, *room.ClientState]()
	conns := connstate.NewRegistry()

	h := NewHub(nil, conns, testValidator{}, nil, nil)
	coordinator := room.NewCoordinator(rooms, clients, store, rules.NewDefault(), nil, h)
	h.SetCoordinator(coordinator)

	router := gin.New()
	router.GET("/ws", h.ServeWs)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{hub: h, store: store, url: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"}
}

func dial(t *testing.T, url, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendMessage(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	msg := Message{Event: event, Payload: data}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func TestServeWsRejectsMissingToken(t *testing.T) {
	srv := newTestServer(t)
	_, resp, err := websocket.DefaultDialer.Dial(srv.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.StatusCode)
}

func TestJoinRoomSendsSnapshot(t *testing.T) {
	srv := newTestServer(t)
	srv.store.SeedRoom(persistence.RoomRecord{
		RoomID:     1,
		Name:       "room one",
		HostUserID: "host",
		MatchType:  types.MatchTypeHeadToHead,
		QueueMode:  types.QueueModeHostOnly,
	})

	conn := dial(t, srv.url, "host")
	sendMessage(t, conn, ActionJoinRoom, joinRoomRequest{RoomID: 1})

	msg := readMessage(t, conn)
	require.Equal(t, EventRoomSnapshot, msg.Event)

	var snapshot room.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snapshot))
	require.Equal(t, types.RoomIdType(1), snapshot.ID)
	require.Len(t, snapshot.Users, 1)
}

func TestJoinRoomWrongPasswordReturnsError(t *testing.T) {
	srv := newTestServer(t)
	srv.store.SeedRoom(persistence.RoomRecord{
		RoomID:     2,
		Name:       "locked room",
		Password:   "secret",
		HostUserID: "host",
		MatchType:  types.MatchTypeHeadToHead,
		QueueMode:  types.QueueModeHostOnly,
	})

	conn := dial(t, srv.url, "host")
	sendMessage(t, conn, ActionJoinRoom, joinRoomRequest{RoomID: 2, Password: "wrong"})

	msg := readMessage(t, conn)
	require.Equal(t, EventError, msg.Event)

	var payload errorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, ActionJoinRoom, payload.Action)
}

func TestSecondJoinBroadcastsToFirstUser(t *testing.T) {
	srv := newTestServer(t)
	srv.store.SeedRoom(persistence.RoomRecord{
		RoomID:     3,
		Name:       "room three",
		HostUserID: "host",
		MatchType:  types.MatchTypeHeadToHead,
		QueueMode:  types.QueueModeHostOnly,
	})

	hostConn := dial(t, srv.url, "host")
	sendMessage(t, hostConn, ActionJoinRoom, joinRoomRequest{RoomID: 3})
	readMessage(t, hostConn) // RoomSnapshot for host

	guestConn := dial(t, srv.url, "guest")
	sendMessage(t, guestConn, ActionJoinRoom, joinRoomRequest{RoomID: 3})
	readMessage(t, guestConn) // RoomSnapshot for guest

	msg := readMessage(t, hostConn)
	require.Equal(t, room.EventUserJoined, msg.Event)

	var payload room.UserJoinedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	require.Equal(t, "guest", payload.UserID)
}

func TestChangeStateRejectsWithoutCurrentItem(t *testing.T) {
	srv := newTestServer(t)
	srv.store.SeedRoom(persistence.RoomRecord{
		RoomID:     4,
		Name:       "room four",
		HostUserID: "host",
		MatchType:  types.MatchTypeHeadToHead,
		QueueMode:  types.QueueModeHostOnly,
	})

	conn := dial(t, srv.url, "host")
	sendMessage(t, conn, ActionJoinRoom, joinRoomRequest{RoomID: 4})
	readMessage(t, conn) // RoomSnapshot

	sendMessage(t, conn, ActionChangeState, changeStateRequest{State: string(types.RoomUserStateReady)})

	msg := readMessage(t, conn)
	require.Equal(t, EventError, msg.Event)
}

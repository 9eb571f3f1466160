package pkg

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (l *fakeLink) Send(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, data)
}

func (l *fakeLink) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) updates(t *testing.T) []ServerUpdate {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ServerUpdate, 0, len(l.frames))
	for _, frame := range l.frames {
		u, err := DecodeServerUpdate(frame)
		require.NoError(t, err)
		out = append(out, u)
	}
	return out
}

func joinRoom(h *Hub, c *Client, roomName string) {
	h.Message(c, EncodeClientUpdate(ClientUpdate{RoomName: &roomName}), true)
}

func TestHubGreeting(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)

	ups := l1.updates(t)
	require.Len(t, ups, 1)
	require.NotNil(t, ups[0].MyID)
	assert.Equal(t, c1.ID(), *ups[0].MyID)
	require.NotNil(t, ups[0].ClientCount)
	assert.Equal(t, uint16(1), *ups[0].ClientCount)
	assert.Nil(t, ups[0].RoomName)
	assert.Nil(t, ups[0].ClientUpdates)
	assert.Nil(t, ups[0].RemoveClientIDs)

	l2 := &fakeLink{}
	c2 := h.Connect(l2)

	ups = l2.updates(t)
	require.Len(t, ups, 1)
	assert.Equal(t, c2.ID(), *ups[0].MyID)
	assert.Equal(t, uint16(2), *ups[0].ClientCount)
	assert.NotEqual(t, c1.ID(), c2.ID())
}

func TestHubJoinRoom(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)
	l2 := &fakeLink{}
	c2 := h.Connect(l2)

	joinRoom(h, c1, "home")

	ups := l1.updates(t)
	require.Len(t, ups, 2)
	joined := ups[1]
	assert.Nil(t, joined.MyID)
	require.NotNil(t, joined.RoomName)
	assert.Equal(t, "home", *joined.RoomName)
	assert.Equal(t, uint16(1), *joined.ClientCount)
	require.Len(t, joined.ClientUpdates, 1)
	assert.Equal(t, c1.ID(), joined.ClientUpdates[0].ID)

	joinRoom(h, c2, "home")

	ups = l2.updates(t)
	require.Len(t, ups, 2)
	joined = ups[1]
	assert.Equal(t, uint16(2), *joined.ClientCount)
	require.Len(t, joined.ClientUpdates, 2)

	// Existing members are not told about the newcomer.
	assert.Len(t, l1.updates(t), 2)
}

func TestHubPointerUpdates(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)
	l2 := &fakeLink{}
	c2 := h.Connect(l2)
	joinRoom(h, c1, "home")
	joinRoom(h, c2, "home")

	h.Message(c1, EncodeClientUpdate(ClientUpdate{PointerXPercent: ptr(float32(0.5))}), true)

	for _, l := range []*fakeLink{l1, l2} {
		ups := l.updates(t)
		require.Len(t, ups, 3)
		moved := ups[2]
		assert.Nil(t, moved.ClientCount)
		require.Len(t, moved.ClientUpdates, 1)
		assert.Equal(t, c1.ID(), moved.ClientUpdates[0].ID)
		require.NotNil(t, moved.ClientUpdates[0].PointerXPercent)
		assert.Equal(t, float32(0.5), *moved.ClientUpdates[0].PointerXPercent)
		assert.Nil(t, moved.ClientUpdates[0].PointerYPercent)
	}

	// A present field overwrites, an absent one keeps the prior value. The
	// broadcast always carries the full current pointer state.
	h.Message(c1, EncodeClientUpdate(ClientUpdate{PointerYPercent: ptr(float32(0.25))}), true)

	ups := l2.updates(t)
	require.Len(t, ups, 4)
	moved := ups[3]
	require.Len(t, moved.ClientUpdates, 1)
	assert.Equal(t, float32(0.5), *moved.ClientUpdates[0].PointerXPercent)
	assert.Equal(t, float32(0.25), *moved.ClientUpdates[0].PointerYPercent)
}

func TestHubPointerUpdateWithoutRoom(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)

	h.Message(c1, EncodeClientUpdate(ClientUpdate{PointerXPercent: ptr(float32(0.75))}), true)

	// No room, so nothing is broadcast, but the position is retained and
	// shows up in the next join snapshot.
	require.Len(t, l1.updates(t), 1)

	joinRoom(h, c1, "home")
	ups := l1.updates(t)
	require.Len(t, ups, 2)
	require.Len(t, ups[1].ClientUpdates, 1)
	require.NotNil(t, ups[1].ClientUpdates[0].PointerXPercent)
	assert.Equal(t, float32(0.75), *ups[1].ClientUpdates[0].PointerXPercent)
}

func TestHubRoomSwitch(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)
	l2 := &fakeLink{}
	c2 := h.Connect(l2)
	joinRoom(h, c1, "a")
	joinRoom(h, c2, "a")

	joinRoom(h, c1, "b")

	// The switcher gets the leave reply for "a" followed by the join reply
	// for "b".
	ups := l1.updates(t)
	require.Len(t, ups, 4)

	left := ups[2]
	assert.Nil(t, left.RoomName)
	require.NotNil(t, left.ClientCount)
	assert.Equal(t, uint16(0), *left.ClientCount)
	assert.ElementsMatch(t, []uint32{c1.ID(), c2.ID()}, left.RemoveClientIDs)

	joined := ups[3]
	assert.Equal(t, "b", *joined.RoomName)
	assert.Equal(t, uint16(1), *joined.ClientCount)

	// The remaining member sees the departure with the updated count.
	ups = l2.updates(t)
	require.Len(t, ups, 3)
	assert.Equal(t, uint16(1), *ups[2].ClientCount)
	assert.Equal(t, []uint32{c1.ID()}, ups[2].RemoveClientIDs)

	require.NotNil(t, c1.room)
	assert.Equal(t, "b", *c1.room)
	assert.Equal(t, 2, h.rooms.count())
}

func TestHubDisconnect(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)
	l2 := &fakeLink{}
	c2 := h.Connect(l2)
	joinRoom(h, c1, "home")
	joinRoom(h, c2, "home")

	h.Disconnect(c1)

	// The direct leave reply is suppressed for a closing connection; only
	// the room broadcast goes out.
	ups := l1.updates(t)
	require.Len(t, ups, 3)
	assert.Equal(t, []uint32{c1.ID()}, ups[2].RemoveClientIDs)

	ups = l2.updates(t)
	require.Len(t, ups, 3)
	require.NotNil(t, ups[2].ClientCount)
	assert.Equal(t, uint16(1), *ups[2].ClientCount)
	assert.Equal(t, []uint32{c1.ID()}, ups[2].RemoveClientIDs)

	assert.Len(t, h.clients, 1)
	assert.Contains(t, h.clients, c2.ID())
	assert.Equal(t, 1, h.rooms.count())

	h.Disconnect(c2)
	assert.Len(t, h.clients, 0)
	assert.Equal(t, 0, h.rooms.count())
}

func TestHubClosesOnTextFrame(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)

	h.Message(c1, []byte("hello"), false)

	assert.True(t, l1.isClosed())
	assert.Len(t, l1.updates(t), 1)
}

func TestHubClosesOnMalformedPayload(t *testing.T) {
	h := NewHub(NewBroker())

	l1 := &fakeLink{}
	c1 := h.Connect(l1)

	h.Message(c1, []byte{0x07, 0x07}, true)

	assert.True(t, l1.isClosed())
	assert.Len(t, l1.updates(t), 1)
}

func TestPresenceEndToEnd(t *testing.T) {
	h := NewHub(NewBroker())

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/socket", h.SocketHandler)
	server := httptest.NewServer(router)
	defer server.Close()

	socketURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/socket"

	dial := func() *websocket.Conn {
		t.Helper()
		conn, _, err := websocket.DefaultDialer.Dial(socketURL, nil)
		require.NoError(t, err)
		return conn
	}
	readUpdate := func(conn *websocket.Conn) ServerUpdate {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		messageType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, messageType)
		u, err := DecodeServerUpdate(data)
		require.NoError(t, err)
		return u
	}
	sendUpdate := func(conn *websocket.Conn, u ClientUpdate) {
		t.Helper()
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, EncodeClientUpdate(u)))
	}

	first := dial()
	defer first.Close()

	greeting := readUpdate(first)
	require.NotNil(t, greeting.MyID)
	firstID := *greeting.MyID
	assert.Nil(t, greeting.RoomName)

	sendUpdate(first, ClientUpdate{RoomName: ptr("home")})
	joined := readUpdate(first)
	require.NotNil(t, joined.RoomName)
	assert.Equal(t, "home", *joined.RoomName)
	assert.Equal(t, uint16(1), *joined.ClientCount)
	require.Len(t, joined.ClientUpdates, 1)
	assert.Equal(t, firstID, joined.ClientUpdates[0].ID)

	second := dial()
	defer second.Close()

	greeting = readUpdate(second)
	require.NotNil(t, greeting.MyID)

	sendUpdate(second, ClientUpdate{RoomName: ptr("home")})
	joined = readUpdate(second)
	assert.Equal(t, uint16(2), *joined.ClientCount)
	require.Len(t, joined.ClientUpdates, 2)

	sendUpdate(first, ClientUpdate{
		PointerXPercent: ptr(float32(0.5)),
		PointerYPercent: ptr(float32(0.5)),
	})

	moved := readUpdate(second)
	require.Len(t, moved.ClientUpdates, 1)
	assert.Equal(t, firstID, moved.ClientUpdates[0].ID)
	assert.Equal(t, float32(0.5), *moved.ClientUpdates[0].PointerXPercent)
	assert.Equal(t, float32(0.5), *moved.ClientUpdates[0].PointerYPercent)

	// The first client never got a join-time notification for the second:
	// the very next frame it sees is its own pointer broadcast.
	echo := readUpdate(first)
	require.Len(t, echo.ClientUpdates, 1)
	assert.Equal(t, firstID, echo.ClientUpdates[0].ID)

	require.NoError(t, first.Close())

	removed := readUpdate(second)
	assert.Equal(t, []uint32{firstID}, removed.RemoveClientIDs)
	require.NotNil(t, removed.ClientCount)
	assert.Equal(t, uint16(1), *removed.ClientCount)
}

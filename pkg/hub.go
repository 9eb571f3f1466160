package pkg

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

func roomTopic(roomName string) string {
	return "room:" + roomName
}

// Hub owns all presence state: the id allocator, the client registry, and
// the room directory. All three are guarded by one lock, and every mutating
// entry point runs under it end to end, including the sends and publishes it
// triggers. That keeps mutations and their broadcasts strictly serialized no
// matter how many connections produce events concurrently.
type Hub struct {
	lock     sync.Mutex
	ids      idAllocator
	clients  map[uint32]*Client
	rooms    *roomDirectory
	pubsub   publisher
	upgrader websocket.Upgrader
}

func NewHub(pubsub publisher) *Hub {
	return &Hub{
		clients: make(map[uint32]*Client),
		rooms:   newRoomDirectory(),
		pubsub:  pubsub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Connect registers a new connection and greets it with its assigned id and
// the current total connected-client count. The client starts with no room.
func (h *Hub) Connect(l link) *Client {
	h.lock.Lock()
	defer h.lock.Unlock()

	c := newClient(h.ids.next(), l)
	h.clients[c.id] = c
	PresenceClientsGauge.Inc()

	total := uint16(len(h.clients))
	c.link.Send(EncodeServerUpdate(ServerUpdate{
		MyID:        &c.id,
		ClientCount: &total,
	}))

	c.logger.Info("Connected")

	return c
}

// Message applies one frame from c's connection. Non-binary frames and
// undecodable payloads are protocol violations: the connection is closed
// without a reply.
func (h *Hub) Message(c *Client, data []byte, isBinary bool) {
	if !isBinary {
		c.logger.Warn("Sent non-binary message, closing")
		c.link.Close()
		return
	}

	update, err := DecodeClientUpdate(data)
	if err != nil {
		c.logger.WithError(err).Warn("Sent invalid message, closing")
		c.link.Close()
		return
	}

	PresenceMessagesCounter.Inc()

	h.lock.Lock()
	defer h.lock.Unlock()

	if update.RoomName != nil && (c.room == nil || *c.room != *update.RoomName) {
		h.setClientRoom(c, *update.RoomName)
	}

	if update.PointerXPercent != nil || update.PointerYPercent != nil {
		if update.PointerXPercent != nil {
			c.pointerXPercent = update.PointerXPercent
		}
		if update.PointerYPercent != nil {
			c.pointerYPercent = update.PointerYPercent
		}

		if c.room != nil {
			h.pubsub.Publish(roomTopic(*c.room), EncodeServerUpdate(ServerUpdate{
				ClientUpdates: []ClientPointer{c.pointer()},
			}))
		}
	}
}

// Disconnect tears down a closed connection: the leave sequence runs with
// the direct reply suppressed, then the client is unregistered.
func (h *Hub) Disconnect(c *Client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if c.room != nil {
		h.removeClientFromRoom(c, true)
	}

	h.pubsub.Drop(c.link)
	delete(h.clients, c.id)
	PresenceClientsGauge.Dec()

	c.logger.Info("Disconnected")
}

// setClientRoom moves c into roomName, leaving its previous room first. The
// joiner is told the room name, the member count, and a full snapshot of
// every member's pointer state so it can render existing cursors
// immediately. Existing members are not notified; they discover the
// newcomer from its next pointer update.
func (h *Hub) setClientRoom(c *Client, roomName string) {
	if c.room != nil {
		h.removeClientFromRoom(c, false)
	}

	members := h.rooms.join(roomName, c)
	PresenceRoomsGauge.Set(float64(h.rooms.count()))

	count := uint16(len(members))
	updates := make([]ClientPointer, 0, len(members))
	for _, m := range members {
		updates = append(updates, m.pointer())
	}

	c.link.Send(EncodeServerUpdate(ServerUpdate{
		RoomName:      &roomName,
		ClientCount:   &count,
		ClientUpdates: updates,
	}))
	h.pubsub.Subscribe(c.link, roomTopic(roomName))

	c.logger.WithField("room", roomName).Info("Added to room")
}

// removeClientFromRoom runs the leave sequence for c's current room. Unless
// the connection is closing, c is first told to clear every cursor it was
// rendering, then unsubscribed. The departure is published after membership
// removal so the broadcast count is accurate.
func (h *Hub) removeClientFromRoom(c *Client, isClosing bool) {
	if c.room == nil {
		panic("client is not in a room")
	}
	removedClientIDs := h.rooms.memberIDs(*c.room)

	if !isClosing {
		zero := uint16(0)
		c.link.Send(EncodeServerUpdate(ServerUpdate{
			ClientCount:     &zero,
			RemoveClientIDs: removedClientIDs,
		}))
	}

	roomName, remaining := h.rooms.leave(c)
	PresenceRoomsGauge.Set(float64(h.rooms.count()))

	if !isClosing {
		h.pubsub.Unsubscribe(c.link, roomTopic(roomName))
	}

	count := uint16(remaining)
	h.pubsub.Publish(roomTopic(roomName), EncodeServerUpdate(ServerUpdate{
		ClientCount:     &count,
		RemoveClientIDs: []uint32{c.id},
	}))

	c.logger.WithField("room", roomName).Info("Removed from room")
}

// LivenessHandler answers the plain liveness probe.
func (h *Hub) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Hub) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
}

// SocketHandler upgrades the request and runs the connection until it
// closes.
func (h *Hub) SocketHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: ", err)
		return
	}

	s := newSession(conn)
	c := h.Connect(s)

	go s.writePump()
	s.readPump(h, c)
}

package relay

import (
	"log/slog"
	"sync"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

// Hub is the signaling relay. It owns the connection registry and the room
// directory, and routes every message a client sends.
//
// A Hub is created once per process, handed to the HTTP handlers, and torn
// down with Close on shutdown.
type Hub struct {
	registry *Registry
	rooms    *Directory
	logger   *slog.Logger
	metrics  *Metrics

	mu     sync.RWMutex
	closed bool
}

type HubOption func(*Hub)

func WithLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithRoomCapacity overrides RoomCapacity. Used by tests.
func WithRoomCapacity(n int) HubOption {
	return func(h *Hub) { h.rooms = NewDirectory(n) }
}

// NewHub creates a new Hub instance.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		registry: NewRegistry(),
		rooms:    NewDirectory(RoomCapacity),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "relay")
	return h
}

// Connect registers ep and sends it a welcome carrying its connection id.
func (h *Hub) Connect(ep Endpoint) (string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return "", ErrHubClosed
	}

	id := h.registry.Register(ep)
	h.metrics.connected()
	h.logger.Info("client registered", "conn", id)

	ep.Deliver(protocol.Welcome(id))
	return id, nil
}

// Disconnect unregisters id, removes it from every room it had joined and
// tells the remaining members. Calling it again for the same id does nothing.
func (h *Hub) Disconnect(id string) {
	rooms, ok := h.registry.Unregister(id)
	if !ok {
		return
	}
	h.metrics.disconnected()
	h.logger.Info("client unregistered", "conn", id, "rooms", len(rooms))

	for _, room := range rooms {
		h.leaveRoom(room, id)
	}
}

// Route handles one message from sender. Messages that are malformed or
// cannot be delivered are logged and dropped; Route never fails.
func (h *Hub) Route(sender string, msg *protocol.Message) {
	if err := msg.Validate(); err != nil {
		h.dropped(dropMalformed, sender, msg, "error", err)
		return
	}
	if _, ok := h.registry.Endpoint(sender); !ok {
		h.dropped(dropUnknownSender, sender, msg)
		return
	}
	h.metrics.received(string(msg.Type))

	switch msg.Type {
	case protocol.MessageTypeJoin:
		h.join(sender, msg.Room)

	case protocol.MessageTypeLeave:
		room, err := protocol.NormalizeRoomID(msg.Room)
		if err != nil {
			h.dropped(dropMalformed, sender, msg, "error", err)
			return
		}
		h.registry.RemoveRoom(sender, room)
		h.leaveRoom(room, sender)

	case protocol.MessageTypeOffer, protocol.MessageTypeAnswer:
		h.forward(sender, msg)

	case protocol.MessageTypeICECandidate:
		if msg.To != "" {
			h.forward(sender, msg)
			return
		}
		h.broadcast(sender, msg)
	}
}

// Rooms lists live rooms and their members.
func (h *Hub) Rooms() []RoomInfo {
	return h.rooms.Snapshot()
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.Len()
}

// Close refuses new connections and closes every registered endpoint. The
// endpoints disconnect themselves as they shut down.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	eps := h.registry.Endpoints()
	h.logger.Info("closing hub", "connections", len(eps))
	for _, ep := range eps {
		ep.Close()
	}
}

func (h *Hub) join(sender, rawRoom string) {
	room, err := protocol.NormalizeRoomID(rawRoom)
	if err != nil {
		h.logger.Warn("join rejected: invalid room", "conn", sender, "room", rawRoom)
		h.metrics.drop(dropRejected)
		h.send(sender, protocol.ErrorMessage(rawRoom, protocol.CodeInvalidRoom, ErrInvalidRoom.Error()))
		return
	}

	// The registry entry is written under the room lock, before anyone hears
	// about the joiner, so a member answering peer-joined straight away
	// already shares the room with it.
	registered := true
	_, err = h.rooms.Join(room, sender, func(snapshot []string, added bool) {
		if !h.registry.AddRoom(sender, room) {
			registered = false
			return
		}

		h.send(sender, protocol.UsersInRoom(room, snapshot))

		// Existing members hear about a joiner exactly once.
		if !added {
			return
		}
		for _, member := range snapshot {
			h.send(member, protocol.PeerJoined(room, sender))
		}
	})
	if err != nil {
		h.logger.Info("join rejected", "conn", sender, "room", room, "error", err)
		h.metrics.drop(dropRejected)
		h.send(sender, protocol.ErrorMessage(room, protocol.CodeRoomFull, "Room is full"))
		return
	}

	// The sender disconnected while joining; drop the dead member.
	if !registered {
		h.leaveRoom(room, sender)
		return
	}

	h.metrics.setRooms(h.rooms.Len())
	h.logger.Info("client joined room", "conn", sender, "room", room)
}

func (h *Hub) leaveRoom(room, conn string) {
	left := h.rooms.Leave(room, conn, func(remaining []string) {
		for _, member := range remaining {
			h.send(member, protocol.PeerLeft(room, conn))
		}
	})
	if !left {
		return
	}

	h.metrics.setRooms(h.rooms.Len())
	h.logger.Info("client left room", "conn", conn, "room", room)
}

func (h *Hub) forward(sender string, msg *protocol.Message) {
	if _, ok := h.registry.Endpoint(msg.To); !ok {
		h.dropped(dropUnknownTarget, sender, msg)
		return
	}
	if !h.registry.SharesRoom(sender, msg.To) {
		h.dropped(dropNotInRoom, sender, msg)
		return
	}

	h.logger.Debug("relaying", "type", msg.Type, "from", sender, "to", msg.To)
	h.send(msg.To, protocol.Relayed(msg, sender))
}

// broadcast delivers msg to every other member of every room sender is in.
func (h *Hub) broadcast(sender string, msg *protocol.Message) {
	seen := make(map[string]struct{})
	for _, room := range h.registry.Rooms(sender) {
		for _, member := range h.rooms.Members(room, sender) {
			if _, ok := seen[member]; ok {
				continue
			}
			seen[member] = struct{}{}
			h.send(member, protocol.Relayed(msg, sender))
		}
	}

	if len(seen) == 0 {
		h.dropped(dropNoRecipients, sender, msg)
	}
}

func (h *Hub) send(id string, msg *protocol.Message) {
	ep, ok := h.registry.Endpoint(id)
	if !ok {
		return
	}
	if !ep.Deliver(msg) {
		h.metrics.drop(dropSlowConsumer)
		h.logger.Warn("delivery failed, closing connection", "conn", id, "type", msg.Type)
		ep.Close()
	}
}

func (h *Hub) dropped(reason, sender string, msg *protocol.Message, args ...any) {
	h.metrics.drop(reason)
	h.logger.Warn("message dropped",
		append([]any{"reason", reason, "conn", sender, "type", msg.Type, "to", msg.To}, args...)...)
}

package signaling

import (
	"github.com/Revaiowo/streamRTC/internal/protocol"
)

// Sink consumes messages from the relay.
type Sink interface {
	Deliver(msg *protocol.Message)
	SignalingClosed()
}

// Handler routes incoming signaling messages to a sink and remembers the
// connection id the relay assigned.
type Handler struct {
	client  *Client
	sink    Sink
	welcome chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, sink Sink) *Handler {
	return &Handler{
		client:  client,
		sink:    sink,
		welcome: make(chan string, 1),
	}
}

// Welcome yields this connection's id once the relay has sent it.
func (h *Handler) Welcome() <-chan string {
	return h.welcome
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection is gone.
func (h *Handler) Start() {
	for msg := range h.client.Incoming() {
		if msg.Type == protocol.MessageTypeWelcome {
			select {
			case h.welcome <- msg.Peer:
			default:
			}
		}
		h.sink.Deliver(msg)
	}
	h.sink.SignalingClosed()
}

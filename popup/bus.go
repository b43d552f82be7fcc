package popup

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// mailboxSize bounds each endpoint's inbox. The protocol exchanges a handful
// of messages per attempt; a full mailbox means the peer is gone, and posting
// must not block the sender forever.
const mailboxSize = 16

// Bus connects the two sides of a window pair. Each side holds an Endpoint
// with its own bounded mailbox; there is no shared mutable state between
// them.
type Bus struct {
	origin string
	opener *Endpoint
	popup  *Endpoint
}

// NewBus creates a bus whose endpoints stamp outgoing messages with origin.
func NewBus(origin string) *Bus {
	b := &Bus{origin: origin}
	logger := log.With().Str("component", "popup-bus").Logger()
	b.opener = &Endpoint{origin: origin, inbox: make(chan Message, mailboxSize), log: logger}
	b.popup = &Endpoint{origin: origin, inbox: make(chan Message, mailboxSize), log: logger}
	b.opener.peer = b.popup
	b.popup.peer = b.opener
	return b
}

// Opener returns the main-window side of the bus.
func (b *Bus) Opener() *Endpoint { return b.opener }

// Popup returns the popup-window side of the bus.
func (b *Bus) Popup() *Endpoint { return b.popup }

// Endpoint is one side of the message channel.
type Endpoint struct {
	origin string
	peer   *Endpoint
	inbox  chan Message
	log    zerolog.Logger
}

// Post delivers msg to the peer's mailbox. An empty Origin is stamped with
// this endpoint's own origin; a populated Origin is kept, which lets tests
// inject foreign-origin traffic. Posting never blocks: if the peer's mailbox
// is full the message is dropped.
func (e *Endpoint) Post(msg Message) {
	if msg.Origin == "" {
		msg.Origin = e.origin
	}
	select {
	case e.peer.inbox <- msg:
	default:
		e.log.Warn().Str("type", string(msg.Type)).Msg("mailbox full, message dropped")
	}
}

// Messages exposes this endpoint's mailbox.
func (e *Endpoint) Messages() <-chan Message {
	return e.inbox
}

// Origin returns the origin this endpoint stamps and accepts.
func (e *Endpoint) Origin() string {
	return e.origin
}

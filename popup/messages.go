// Package popup models the popup/opener window pair of the authorization
// flow: two independent executions that communicate only through structured,
// origin-tagged messages. The opener side (Channel) waits for the
// authorization result; the popup side (Relay) handles the provider's
// redirect and reports back.
package popup

// MessageType identifies an inter-window message.
type MessageType string

const (
	MessageOAuthSuccess   MessageType = "OAUTH_SUCCESS"
	MessageOAuthError     MessageType = "OAUTH_ERROR"
	MessageHealthCheck    MessageType = "POPUP_HEALTH_CHECK"
	MessageHealthResponse MessageType = "POPUP_HEALTH_RESPONSE"
)

// Message is a structured inter-window message. Origin identifies the sender
// and is checked by the receiver; messages from a foreign origin are dropped,
// never treated as protocol input.
type Message struct {
	Type     MessageType `json:"type"`
	Origin   string      `json:"-"`
	JWT      string      `json:"jwt,omitempty"`
	Code     string      `json:"code,omitempty"`
	State    string      `json:"state,omitempty"`
	Provider string      `json:"provider,omitempty"`
	Error    string      `json:"error,omitempty"`
}

package models

import (
	"encoding/json"
	"time"
)

// Command actions accepted over the subscription wire protocol.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
	ActionGetStatus   = "get_status"
)

// Command is an inbound client message.
type Command struct {
	Action  string `json:"action" validate:"required,oneof=subscribe unsubscribe ping get_status"`
	Channel string `json:"channel" validate:"required_if=Action subscribe,required_if=Action unsubscribe,omitempty,max=64"`
}

// Envelope message types.
const (
	TypeUpdate       = "update"
	TypeError        = "error"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeStatus       = "status"
	TypePong         = "pong"
)

// Envelope is the outbound server message.
type Envelope struct {
	Channel   string          `json:"channel,omitempty"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// NewEnvelope builds an envelope with a marshalled data section. Marshal
// failures are reported as an error envelope rather than propagated; data
// values are server-owned types and do not fail marshalling in practice.
func NewEnvelope(channel, typ string, data interface{}) Envelope {
	env := Envelope{
		Channel:   channel,
		Type:      typ,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if data == nil {
		return env
	}
	raw, err := json.Marshal(data)
	if err != nil {
		env.Type = TypeError
		raw, _ = json.Marshal(ErrorData{Code: "encode_failed", Message: err.Error()})
	}
	env.Data = raw
	return env
}

// UpdateData is the data section of a type=update envelope.
type UpdateData struct {
	Payload          json.RawMessage `json:"payload"`
	Stale            bool            `json:"stale"`
	SourceProviderID string          `json:"source_provider_id"`
}

// ErrorData is the data section of a type=error envelope.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusData is the data section of a type=status envelope.
type StatusData struct {
	SubscribedChannels []string  `json:"subscribed_channels"`
	ConnectedAt        time.Time `json:"connected_at"`
	LastActivity       time.Time `json:"last_activity"`
}

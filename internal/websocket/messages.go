package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of an event message.
type MessageType string

const (
	TypeRunStarted     MessageType = "run.started"
	TypeUnitReconciled MessageType = "run.unit_reconciled"
	TypeRunCompleted   MessageType = "run.completed"
	TypeNotification   MessageType = "notification"
)

// Message is the envelope for every event pushed to clients.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a message stamped with the current time.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// RunStartedPayload is the payload for run.started events.
type RunStartedPayload struct {
	Units     int       `json:"units"`
	StartedAt time.Time `json:"started_at"`
}

// UnitReconciledPayload is the payload for run.unit_reconciled events.
type UnitReconciledPayload struct {
	UnitID      string `json:"unit_id"`
	DisplayName string `json:"display_name"`
	Action      string `json:"action"`
	Line        string `json:"line"`
	Failed      bool   `json:"failed"`
}

// RunCompletedPayload is the payload for run.completed events.
type RunCompletedPayload struct {
	HadError   bool      `json:"had_error"`
	Units      int       `json:"units"`
	Failures   int       `json:"failures"`
	FinishedAt time.Time `json:"finished_at"`
}

// NotificationPayload carries free-form operator notifications.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error
	Message string `json:"message"`
}

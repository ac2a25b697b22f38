package websocket

import (
	"go.uber.org/zap"
)

// EventBroadcaster encodes run events and pushes them through the hub.
type EventBroadcaster struct {
	hub    *Hub
	logger *zap.SugaredLogger
}

// NewEventBroadcaster creates a broadcaster over the hub.
func NewEventBroadcaster(hub *Hub, logger *zap.SugaredLogger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: logger}
}

// RunStarted announces the start of a reconciliation pass.
func (b *EventBroadcaster) RunStarted(payload RunStartedPayload) {
	b.send(NewMessage(TypeRunStarted, payload))
}

// UnitReconciled announces one unit's result.
func (b *EventBroadcaster) UnitReconciled(payload UnitReconciledPayload) {
	b.send(NewMessage(TypeUnitReconciled, payload))
}

// RunCompleted announces the end of a pass.
func (b *EventBroadcaster) RunCompleted(payload RunCompletedPayload) {
	b.send(NewMessage(TypeRunCompleted, payload))
}

// Notify pushes an operator notification.
func (b *EventBroadcaster) Notify(level, message string) {
	b.send(NewMessage(TypeNotification, NotificationPayload{Level: level, Message: message}))
}

func (b *EventBroadcaster) send(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Errorf("Encoding WebSocket message: %v", err)
		return
	}
	b.hub.Broadcast(data)
}

package ws

import (
	"context"

	"github.com/vkoval/agora/internal/event"
)

// HubSink implements service.EventSink using the WebSocket Hub.
type HubSink struct {
	hub *Hub
}

func NewHubSink(hub *Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Publish(_ context.Context, ev *event.Event) {
	s.hub.Deliver(ev)
}

package router

import (
	"sync"
	"time"
)

// EventType identifies a supervisor notification
type EventType string

const (
	EventStatusChanged       EventType = "status_changed"
	EventRunningChanged      EventType = "running_changed"
	EventReady               EventType = "ready"
	EventStopped             EventType = "stopped"
	EventTunnelCreated       EventType = "tunnel_created"
	EventTunnelDestroyed     EventType = "tunnel_destroyed"
	EventTunnelStatusChanged EventType = "tunnel_status_changed"
	EventNetworkStatsChanged EventType = "network_stats_changed"
	EventError               EventType = "error"
)

// Event is a typed supervisor notification. Only the fields relevant to the
// event type are populated.
type Event struct {
	Type         EventType     `json:"type"`
	Time         time.Time     `json:"time"`
	Status       Status        `json:"status,omitempty"`        // status_changed
	Running      bool          `json:"running,omitempty"`       // running_changed
	Success      bool          `json:"success,omitempty"`       // ready
	SocksAddress string        `json:"socks_address,omitempty"` // ready
	TunnelID     string        `json:"tunnel_id,omitempty"`     // tunnel_*
	Stats        *NetworkStats `json:"stats,omitempty"`         // network_stats_changed
	Message      string        `json:"message,omitempty"`       // error
}

// EventBus fans supervisor events out to subscribers. Publish never blocks:
// each subscriber gets a buffered channel and slow subscribers drop events
// rather than stalling the state machine. Events are delivered to each
// subscriber in publish order.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[chan Event]bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[chan Event]bool),
	}
}

// Subscribe registers a new subscriber channel
func (b *EventBus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 64)
	b.subscribers[ch] = true
	return ch
}

// Unsubscribe removes and closes a subscriber channel
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[ch] {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish delivers an event to all subscribers
func (b *EventBus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, drop rather than block
		}
	}
}

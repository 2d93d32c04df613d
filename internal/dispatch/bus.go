// Package dispatch implements the Dispatch Bus: a publish-only channel
// from the kernel to subscribing runners (spec.md §4.4). Delivery is
// at-least-once; consumers are expected to be idempotent by event id
// and worker sessionGeneration (spec.md §5).
package dispatch

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// EventType enumerates the wire event names from spec.md §4.4.
type EventType string

const (
	EventTaskAssigned   EventType = "TaskAssigned"
	EventTaskClaimed    EventType = "TaskClaimed"
	EventWorkerStarted  EventType = "WorkerStarted"
	EventWorkerProgress EventType = "WorkerProgress"
	EventWorkerCompleted EventType = "WorkerCompleted"
	EventWorkerFailed   EventType = "WorkerFailed"
	EventSkillInstall   EventType = "SkillInstall"
	EventTaskUnblocked  EventType = "TaskUnblocked"
)

// WorkspaceChannel, WorkerChannel and TaskChannel build the channel names
// from spec.md §6 ("workspace-<id>", "worker-<id>", "task-<id>").
func WorkspaceChannel(workspaceID string) string { return "workspace-" + workspaceID }
func WorkerChannel(workerID string) string       { return "worker-" + workerID }
func TaskChannel(taskID string) string           { return "task-" + taskID }

// Event is the bus's wire envelope: {channel, event, payload}.
type Event struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	Type    EventType `json:"event"`
	Payload any       `json:"payload"`
}

// Subscriber receives events delivered over a websocket-backed channel
// subscription, mirroring the teacher's Client/Hub split in server/hub.go.
type Subscriber struct {
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]bool
}

// Bus fans out published events to subscribers and (optionally) persists
// them for durable, at-least-once delivery to polling runners.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[*Subscriber]bool
	register    chan *Subscriber
	unregister  chan *Subscriber
	broadcast   chan Event
	store       *Outbox
	mirror      func(Event)
}

// BufferSize bounds the broadcast channel, matching the teacher's
// WebSocketBufferSize constant for burst tolerance.
const BufferSize = 256

// NewBus creates a Dispatch Bus. store may be nil to disable durable
// persistence (pure in-process fan-out, used by tests).
func NewBus(store *Outbox) *Bus {
	return &Bus{
		subscribers: make(map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		broadcast:   make(chan Event, BufferSize),
		store:       store,
	}
}

// Run starts the bus's dispatch loop; call it once in its own goroutine.
func (b *Bus) Run() {
	for {
		select {
		case s := <-b.register:
			b.mu.Lock()
			b.subscribers[s] = true
			b.mu.Unlock()

		case s := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.subscribers[s]; ok {
				delete(b.subscribers, s)
				close(s.send)
			}
			b.mu.Unlock()

		case event := <-b.broadcast:
			b.deliver(event)
		}
	}
}

func (b *Bus) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[DISPATCH] failed to marshal event %s: %v", event.Type, err)
		return
	}

	b.mu.RLock()
	for s := range b.subscribers {
		if !s.channels[event.Channel] {
			continue
		}
		select {
		case s.send <- data:
		default:
			log.Printf("[DISPATCH] subscriber send buffer full, dropping connection")
			close(s.send)
			delete(b.subscribers, s)
		}
	}
	b.mu.RUnlock()

	if b.store != nil {
		if err := b.store.Save(&event); err != nil {
			// Publish failures are logged and swallowed: the database row
			// committed by the caller is the source of truth (spec.md §7).
			log.Printf("[DISPATCH] failed to persist event %s for outbox delivery: %v", event.Type, err)
		}
	}
}

// Publish fans an event out to live subscribers and, if an Outbox is
// configured, durably records it for polling-runner pickup. If a remote
// mirror is configured (SetMirror), the event is also forwarded there so
// other coordinatord processes behind a load balancer observe it.
func (b *Bus) Publish(event Event) {
	b.publishLocal(event)
	b.mu.RLock()
	mirror := b.mirror
	b.mu.RUnlock()
	if mirror != nil {
		mirror(event)
	}
}

// publishLocal enqueues an event for local delivery only, skipping the
// remote mirror. SubscribeAll uses this for events that originated
// remotely, so they aren't bounced back out and echoed forever.
func (b *Bus) publishLocal(event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	select {
	case b.broadcast <- event:
	default:
		log.Printf("[DISPATCH] broadcast channel saturated, dropping event %s on %s", event.Type, event.Channel)
		if b.store != nil {
			if err := b.store.Save(&event); err != nil {
				log.Printf("[DISPATCH] failed to persist event %s for outbox delivery: %v", event.Type, err)
			}
		}
	}
}

// SetMirror installs a hook invoked for every locally-originated Publish
// call, used to fan events out to a cross-process transport (e.g. a
// NATSBridge.PublishRemote). Pass nil to disable.
func (b *Bus) SetMirror(mirror func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = mirror
}

// Register subscribes a websocket connection to the given channels.
func (b *Bus) Register(conn *websocket.Conn, channels []string) *Subscriber {
	chset := make(map[string]bool, len(channels))
	for _, c := range channels {
		chset[c] = true
	}
	s := &Subscriber{conn: conn, send: make(chan []byte, BufferSize), channels: chset}
	b.register <- s
	return s
}

// Unregister removes a subscriber.
func (b *Bus) Unregister(s *Subscriber) {
	b.unregister <- s
}

// SubscriberCount reports the number of live websocket subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// ReadPump drains (and discards) inbound messages; runners only ever
// subscribe, they never publish over this transport (spec.md §4.4).
func (s *Subscriber) ReadPump() {
	defer s.conn.Close()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump flushes outbound events to the websocket connection.
func (s *Subscriber) WritePump() {
	defer s.conn.Close()
	for message := range s.send {
		if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	s.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

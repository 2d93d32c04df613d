package dispatch

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	nc "github.com/nats-io/nats.go"
)

// natsSubjectPrefix namespaces dispatch subjects from any other traffic
// sharing the same NATS account (teacher's subject convention, see
// internal/nats/client.go).
const natsSubjectPrefix = "coordinatord.dispatch."

// NATSBridge mirrors locally published events onto NATS subjects, one per
// channel, so a fleet of coordinatord processes behind a load balancer can
// share a single event stream instead of each only seeing its own
// in-process subscribers (spec.md §1 "realtime fan-out transport", an
// explicitly pluggable collaborator; this is the alternate backing this
// kernel ships with alongside the in-process Hub).
type NATSBridge struct {
	conn *nc.Conn
	bus  *Bus
	subs []*nc.Subscription
}

// NewNATSBridge connects to url and wires it to bus. Publishing mirrors
// every locally-originated event out; subscribing re-publishes every
// remotely-originated event into the local bus so its websocket
// subscribers see it too.
func NewNATSBridge(url string, bus *Bus) (*NATSBridge, error) {
	opts := []nc.Option{
		nc.ReconnectWait(2 * time.Second),
		nc.MaxReconnects(-1),
		nc.DisconnectErrHandler(func(_ *nc.Conn, err error) {
			if err != nil {
				log.Printf("[DISPATCH-NATS] disconnected: %v", err)
			}
		}),
		nc.ReconnectHandler(func(c *nc.Conn) {
			log.Printf("[DISPATCH-NATS] reconnected to %s", c.ConnectedUrl())
		}),
	}
	conn, err := nc.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSBridge{conn: conn, bus: bus}, nil
}

// SubscribeAll mirrors every dispatch subject back into the local bus via
// publishLocal, which bypasses the mirror hook, so a received event is
// never published to NATS again. Events this process published itself are
// not filtered out: they come back over the subscription and are
// delivered to local subscribers a second time.
func (b *NATSBridge) SubscribeAll() error {
	sub, err := b.conn.Subscribe(natsSubjectPrefix+">", func(msg *nc.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[DISPATCH-NATS] malformed event on %s: %v", msg.Subject, err)
			return
		}
		b.bus.publishLocal(event)
	})
	if err != nil {
		return fmt.Errorf("subscribe to dispatch subjects: %w", err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// PublishRemote mirrors a locally-published event onto its NATS subject.
// cmd/coordinatord installs it as the Bus mirror hook (Bus.SetMirror), so
// every Bus.Publish calls it; the Bus itself holds no NATS dependency.
func (b *NATSBridge) PublishRemote(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event for NATS: %w", err)
	}
	return b.conn.Publish(natsSubjectPrefix+event.Channel, data)
}

// Close drains subscriptions and closes the underlying connection.
func (b *NATSBridge) Close() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.conn.Close()
}

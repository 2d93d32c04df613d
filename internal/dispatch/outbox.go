package dispatch

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Outbox persists published events so a runner that reconnects after
// missing a live websocket push can catch up by polling (spec.md §4.4).
type Outbox struct {
	db *sql.DB
}

// NewOutbox wraps an already-migrated database for durable event storage.
func NewOutbox(db *sql.DB) *Outbox {
	return &Outbox{db: db}
}

// Save records a published event as undelivered.
func (o *Outbox) Save(event *Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = o.db.Exec(`
		INSERT INTO dispatch_events (id, channel, type, payload, created_at, delivered_at)
		VALUES (?, ?, ?, ?, ?, NULL)
	`, event.ID, event.Channel, string(event.Type), string(payload), time.Now())
	return err
}

// Pending returns undelivered events for the given channels, oldest first.
// A runner calls this on reconnect to replay anything it may have missed.
func (o *Outbox) Pending(channels []string, since time.Time) ([]*Event, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, 0, len(channels)+1)
	for i, c := range channels {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args = append(args, c)
	}
	args = append(args, since)

	rows, err := o.db.Query(fmt.Sprintf(`
		SELECT id, channel, type, payload, created_at FROM dispatch_events
		WHERE channel IN (%s) AND created_at > ? AND delivered_at IS NULL
		ORDER BY created_at ASC
	`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var e Event
		var payload string
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Channel, &e.Type, &payload, &createdAt); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(payload), &v); err == nil {
			e.Payload = v
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// MarkDelivered flags events as delivered so Pending stops returning them.
// Used by transports that only need "at least once, eventually caught up"
// rather than full replay.
func (o *Outbox) MarkDelivered(ids []string) error {
	now := time.Now()
	for _, id := range ids {
		if _, err := o.db.Exec(`UPDATE dispatch_events SET delivered_at = ? WHERE id = ?`, now, id); err != nil {
			return err
		}
	}
	return nil
}

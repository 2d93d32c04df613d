package dispatch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/buildd-ai/coordinatord/internal/store"
)

func TestChannelNaming(t *testing.T) {
	if got := WorkspaceChannel("ws-1"); got != "workspace-ws-1" {
		t.Errorf("WorkspaceChannel = %q", got)
	}
	if got := WorkerChannel("WRK-1"); got != "worker-WRK-1" {
		t.Errorf("WorkerChannel = %q", got)
	}
	if got := TaskChannel("TASK-1"); got != "task-TASK-1" {
		t.Errorf("TaskChannel = %q", got)
	}
}

func TestOutboxSaveAndPending(t *testing.T) {
	db, cleanup, err := store.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	outbox := NewOutbox(db)
	since := time.Now().Add(-time.Minute)

	event := &Event{ID: "evt-1", Channel: "workspace-ws-1", Type: EventTaskClaimed, Payload: map[string]any{"taskId": "TASK-1"}}
	if err := outbox.Save(event); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	pending, err := outbox.Pending([]string{"workspace-ws-1"}, since)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending event, got %d", len(pending))
	}
	if pending[0].Type != EventTaskClaimed {
		t.Errorf("expected TaskClaimed, got %s", pending[0].Type)
	}

	if err := outbox.MarkDelivered([]string{"evt-1"}); err != nil {
		t.Fatal(err)
	}
	pending, err = outbox.Pending([]string{"workspace-ws-1"}, since)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected delivered event to drop out of Pending, got %d", len(pending))
	}
}

func TestBusPublishFansOutToSubscribedChannel(t *testing.T) {
	bus := NewBus(nil)
	go bus.Run()

	// No websocket in this test; exercise Publish/deliver through a bare
	// subscriber map entry instead of a live connection.
	sub := &Subscriber{send: make(chan []byte, 1), channels: map[string]bool{"workspace-ws-1": true}}
	bus.register <- sub

	done := make(chan struct{})
	go func() {
		bus.Publish(Event{Channel: "workspace-ws-1", Type: EventWorkerStarted, Payload: map[string]any{"ok": true}})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish did not return")
	}

	select {
	case data := <-sub.send:
		var got Event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal delivered event: %v", err)
		}
		if got.Type != EventWorkerStarted {
			t.Errorf("expected WorkerStarted, got %s", got.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber on workspace-ws-1 did not receive the event")
	}
}

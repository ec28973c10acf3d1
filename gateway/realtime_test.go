package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeConn struct {
	mu       sync.Mutex
	writes   []map[string]any
	incoming chan []byte
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.incoming
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, msg, nil
}

func (c *fakeConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.mu.Lock()
	c.writes = append(c.writes, m)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func (c *fakeConn) writesByEvent(event string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, w := range c.writes {
		if w["event"] == event {
			out = append(out, w)
		}
	}
	return out
}

func (c *fakeConn) push(t *testing.T, topic, eventType string) {
	t.Helper()
	msg, err := json.Marshal(map[string]any{
		"topic": topic,
		"event": "postgres_changes",
		"payload": map[string]any{
			"data": map[string]any{
				"type":   eventType,
				"schema": "public",
				"table":  "notifications",
				"record": map[string]any{"id": "n1"},
			},
		},
	})
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	c.incoming <- msg
}

func newTestRealtime(t *testing.T) (*RealtimeClient, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	client := NewRealtimeClient(RealtimeConfig{URL: "https://example.test", APIKey: "k"})
	client.dial = func(ctx context.Context) (wsConn, error) { return conn, nil }
	t.Cleanup(func() { client.Close() })
	return client, conn
}

func waitFor(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return ChangeEvent{}
	}
}

func TestSubscribersShareOneChannel(t *testing.T) {
	client, conn := newTestRealtime(t)
	cfg := ChangeConfig{Table: "notifications", Filter: "user_id=eq.u1"}

	cancel1, err := client.Subscribe(context.Background(), cfg, func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	cancel2, err := client.Subscribe(context.Background(), cfg, func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	if joins := conn.writesByEvent("phx_join"); len(joins) != 1 {
		t.Fatalf("joins = %d, want 1", len(joins))
	}

	cancel1()
	if leaves := conn.writesByEvent("phx_leave"); len(leaves) != 0 {
		t.Fatalf("leaves after first cancel = %d, want 0", len(leaves))
	}

	cancel2()
	cancel2() // idempotent
	if leaves := conn.writesByEvent("phx_leave"); len(leaves) != 1 {
		t.Fatalf("leaves after last cancel = %d, want 1", len(leaves))
	}
}

func TestDistinctFiltersGetDistinctChannels(t *testing.T) {
	client, conn := newTestRealtime(t)

	_, err := client.Subscribe(context.Background(), ChangeConfig{Table: "notifications", Filter: "user_id=eq.u1"}, func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	_, err = client.Subscribe(context.Background(), ChangeConfig{Table: "notifications", Filter: "user_id=eq.u2"}, func(ChangeEvent) {})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	if joins := conn.writesByEvent("phx_join"); len(joins) != 2 {
		t.Fatalf("joins = %d, want 2", len(joins))
	}
}

func TestEventsReachSubscribers(t *testing.T) {
	client, conn := newTestRealtime(t)
	events := make(chan ChangeEvent, 1)

	_, err := client.Subscribe(context.Background(), ChangeConfig{Table: "notifications", Filter: "user_id=eq.u1"}, func(ev ChangeEvent) {
		events <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	conn.push(t, "realtime:public:notifications:user_id=eq.u1", "INSERT")
	ev := waitFor(t, events)
	if ev.Type != "INSERT" {
		t.Errorf("Type = %q, want INSERT", ev.Type)
	}
	if ev.Table != "notifications" {
		t.Errorf("Table = %q", ev.Table)
	}
}

func TestNoDeliveryAfterCancel(t *testing.T) {
	client, conn := newTestRealtime(t)
	events := make(chan ChangeEvent, 1)

	cancel, err := client.Subscribe(context.Background(), ChangeConfig{Table: "notifications", Filter: "user_id=eq.u1"}, func(ev ChangeEvent) {
		events <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	cancel()

	conn.push(t, "realtime:public:notifications:user_id=eq.u1", "INSERT")
	select {
	case <-events:
		t.Fatal("handler fired after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventTypeFiltering(t *testing.T) {
	client, conn := newTestRealtime(t)
	events := make(chan ChangeEvent, 2)

	_, err := client.Subscribe(context.Background(), ChangeConfig{Event: "INSERT", Table: "notifications", Filter: "user_id=eq.u1"}, func(ev ChangeEvent) {
		events <- ev
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	topic := "realtime:public:notifications:user_id=eq.u1"
	conn.push(t, topic, "UPDATE")
	conn.push(t, topic, "INSERT")

	ev := waitFor(t, events)
	if ev.Type != "INSERT" {
		t.Errorf("Type = %q, UPDATE should have been filtered out", ev.Type)
	}
}

func TestSubscribeAfterCloseFails(t *testing.T) {
	client, _ := newTestRealtime(t)
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	_, err := client.Subscribe(context.Background(), ChangeConfig{Table: "notifications"}, func(ChangeEvent) {})
	if err == nil {
		t.Fatal("expected error subscribing after Close")
	}
}

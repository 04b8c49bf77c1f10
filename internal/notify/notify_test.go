package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/kashyapanjali/periskope/internal/bus"
)

func TestFlashExpires(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewCenter(nil, nil)
	c.now = func() time.Time { return now }

	if _, ok := c.Flash(); ok {
		t.Fatal("flash present before any notification")
	}

	c.Info("chat created")
	n, ok := c.Flash()
	if !ok || n.Text() != "chat created" {
		t.Fatalf("Flash() = %+v, %v", n, ok)
	}

	now = now.Add(DefaultTTL + time.Millisecond)
	if _, ok := c.Flash(); ok {
		t.Error("flash still visible after ttl")
	}
}

func TestErrorPublishedOnBus(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(bus.NamespaceNotify, 4)
	defer unsub()

	c := NewCenter(b, nil)
	c.Error("failed to load messages", errors.New("boom"))

	evt := <-ch
	if evt.Kind != "notify.error" {
		t.Errorf("kind = %q, want notify.error", evt.Kind)
	}
	n, ok := evt.Payload.(Notification)
	if !ok {
		t.Fatalf("payload type = %T", evt.Payload)
	}
	if n.Text() != "failed to load messages: boom" {
		t.Errorf("text = %q", n.Text())
	}
}

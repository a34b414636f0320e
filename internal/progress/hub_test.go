package progress

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cybersentinel/internal/domain"
)

func recv(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestHubDeliversUntilTerminal(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(context.Background(), "s1")
	defer cancel()

	h.Publish(Event{ScanID: "s1", Status: domain.ScanRunning, Progress: 0.5})
	h.Publish(Event{ScanID: "other", Status: domain.ScanRunning, Progress: 0.1})
	h.Publish(Event{ScanID: "s1", Status: domain.ScanCompleted, Progress: 1})

	ev, ok := recv(t, ch)
	require.True(t, ok)
	assert.Equal(t, 0.5, ev.Progress)
	assert.False(t, ev.At.IsZero())

	ev, ok = recv(t, ch)
	require.True(t, ok)
	assert.Equal(t, domain.ScanCompleted, ev.Status)

	_, ok = recv(t, ch)
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers("s1"))
}

func TestHubReplaysLatestEvent(t *testing.T) {
	h := NewHub()
	h.Publish(Event{ScanID: "s1", Status: domain.ScanRunning, Progress: 0.25})
	h.Publish(Event{ScanID: "s1", Status: domain.ScanRunning, Progress: 0.75})

	ch, cancel := h.Subscribe(context.Background(), "s1")
	defer cancel()
	ev, ok := recv(t, ch)
	require.True(t, ok)
	assert.Equal(t, 0.75, ev.Progress)
}

func TestHubUnsubscribesOnContextDone(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := h.Subscribe(ctx, "s1")
	assert.Equal(t, 1, h.Subscribers("s1"))

	cancel()
	_, ok := recv(t, ch)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return h.Subscribers("s1") == 0 }, time.Second, 5*time.Millisecond)
}

func TestHubTerminalEventSurvivesFullBuffer(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe(context.Background(), "s1")
	defer cancel()

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(Event{ScanID: "s1", Status: domain.ScanRunning, Progress: float64(i) / 100})
	}
	h.Publish(Event{ScanID: "s1", Status: domain.ScanFailed})

	var last Event
	for ev := range ch {
		last = ev
	}
	assert.Equal(t, domain.ScanFailed, last.Status)
}

package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoomIsolation(t *testing.T) {
	hub := NewHub()
	a, cancelA := hub.Subscribe("sv-a")
	defer cancelA()
	b, cancelB := hub.Subscribe("sv-b")
	defer cancelB()

	hub.Publish("sv-a", "session_started", map[string]any{"respondent_name": "Ada"})

	select {
	case ev := <-a:
		assert.Equal(t, "session_started", ev.Event)
	case <-time.After(time.Second):
		t.Fatal("subscriber a did not receive the event")
	}
	select {
	case ev := <-b:
		t.Fatalf("subscriber b must not see sv-a events, got %+v", ev)
	default:
	}
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("sv-a")
	defer cancel()

	// Fill the buffer and then some; the extra publishes must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			hub.Publish("sv-a", "new_response", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	received := 0
	for {
		select {
		case <-ch:
			received++
			continue
		default:
		}
		break
	}
	assert.Equal(t, subscriberBuffer, received, "slow subscriber keeps only a buffer's worth")
}

func TestHubUnsubscribeCleansRoom(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe("sv-a")
	require.Equal(t, 1, hub.SubscriberCount("sv-a"))

	cancel()
	assert.Equal(t, 0, hub.SubscriberCount("sv-a"))

	_, open := <-ch
	assert.False(t, open, "cancel closes the channel")

	// Cancel is safe to call twice.
	cancel()

	// Publishing into an empty room is a no-op.
	hub.Publish("sv-a", "session_completed", nil)
}

func TestHubEventTimestamp(t *testing.T) {
	hub := NewHub()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return fixed }

	ch, cancel := hub.Subscribe("sv-a")
	defer cancel()
	hub.Publish("sv-a", "analysis_ready", map[string]any{"survey_id": "sv-a"})

	ev := <-ch
	assert.Equal(t, fixed, ev.Timestamp)
	assert.Equal(t, "analysis_ready", ev.Event)
}

package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	b.PublishRecord(map[string]int{"n": 1})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			assert.Equal(t, EventRecord, e.Type)
			assert.False(t, e.Timestamp.IsZero())
		default:
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	require.Equal(t, 1, b.Len())

	unsub()
	assert.Equal(t, 0, b.Len())

	_, open := <-ch
	assert.False(t, open)
}

func TestSlowConsumerIsDroppedNotBlocked(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	defer unsub()

	// Overfill the 64-slot buffer; the extra publishes must not block.
	for i := 0; i < 100; i++ {
		b.PublishAlert(i)
	}
	assert.Len(t, ch, 64)
}

func TestEventTypes(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe()
	defer unsub()

	b.PublishHeartbeat(nil)
	b.PublishNodeUpdate(nil)

	assert.Equal(t, EventHeartbeat, (<-ch).Type)
	assert.Equal(t, EventNodeUpdate, (<-ch).Type)
}

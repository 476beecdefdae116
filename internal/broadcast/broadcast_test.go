package broadcast

import (
	"testing"
	"time"

	"github.com/cannero/kvreplica/internal/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeBeforePublishReceivesEvent(t *testing.T) {
	h := New(4)
	sub := h.Subscribe()

	event := resp.NewArray(resp.NewBulkString("SET"), resp.NewBulkString("k"), resp.NewBulkString("v"))
	h.Publish(event)

	select {
	case got := <-sub.Events():
		assert.True(t, event.Equal(got))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	h := New(4)
	done := make(chan struct{})
	go func() {
		h.Publish(resp.NewSimpleString("x"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestLateSubscriberMissesEarlierEvents(t *testing.T) {
	h := New(4)
	h.Publish(resp.NewSimpleString("before"))
	sub := h.Subscribe()
	h.Publish(resp.NewSimpleString("after"))

	got := <-sub.Events()
	assert.Equal(t, "after", got.Str)
}

func TestLaggingSubscriberIsDropped(t *testing.T) {
	h := New(2)
	sub := h.Subscribe()

	for i := 0; i < 10; i++ {
		h.Publish(resp.NewInteger(int64(i)))
	}

	select {
	case <-sub.Lagged():
	case <-time.After(time.Second):
		t.Fatal("expected subscriber to be marked lagged")
	}
	assert.Equal(t, 0, h.Count())
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	h := New(4)
	sub := h.Subscribe()
	require.Equal(t, 1, h.Count())
	h.Unsubscribe(sub)
	assert.Equal(t, 0, h.Count())
}

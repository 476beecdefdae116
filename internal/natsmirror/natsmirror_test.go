package natsmirror

import (
	"sync"
	"testing"
	"time"

	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu        sync.Mutex
	published [][]byte
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, data)
	return nil
}

func (f *fakePublisher) snapshot() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published...)
}

func TestMirrorForwardsWriteEvents(t *testing.T) {
	hub := broadcast.New(4)
	fake := &fakePublisher{}
	m := &Mirror{conn: fake, subject: "kvreplica.writes"}

	go m.Run(hub)

	deadline := time.Now().Add(time.Second)
	for hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, hub.Count())

	event := resp.NewArray(resp.NewBulkString("SET"), resp.NewBulkString("k"), resp.NewBulkString("v"))
	hub.Publish(event)

	deadline = time.Now().Add(time.Second)
	for len(fake.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Len(t, fake.snapshot(), 1)
	assert.Equal(t, resp.Encode(event), fake.snapshot()[0])
}

func TestMirrorStopsOnLag(t *testing.T) {
	hub := broadcast.New(1)
	fake := &fakePublisher{}
	m := &Mirror{conn: fake, subject: "kvreplica.writes"}

	done := make(chan struct{})
	go func() { m.Run(hub); close(done) }()

	deadline := time.Now().Add(time.Second)
	for hub.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 10; i++ {
		hub.Publish(resp.NewInteger(int64(i)))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to stop after lagging")
	}
}

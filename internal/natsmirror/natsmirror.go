// Package natsmirror best-effort republishes applied WriteEvents onto
// an external NATS subject, grounded on the teacher's own pkg/nats
// singleton client (connect-once, Publish([]byte)) but consuming the
// broadcast.Hub exactly like any other replication subscriber rather
// than a bespoke hook — it never sits on the correctness path.
package natsmirror

import (
	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/cannero/kvreplica/internal/resp"
	"github.com/nats-io/nats.go"
)

const defaultSubject = "kvreplica.writes"

// publisher is the slice of *nats.Conn this package actually needs;
// factored out so tests can exercise Run without a live NATS server.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Mirror owns a NATS connection and a broadcast.Subscriber; Run
// forwards every WriteEvent it receives as the event's wire encoding
// until the hub drops it as a lagging subscriber.
type Mirror struct {
	conn    publisher
	closer  func()
	subject string
}

// Connect dials url and returns a Mirror publishing to subject (empty
// defaults to "kvreplica.writes").
func Connect(url, subject string) (*Mirror, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = defaultSubject
	}
	return &Mirror{conn: conn, closer: conn.Close, subject: subject}, nil
}

// Close closes the underlying NATS connection without draining it.
func (m *Mirror) Close() {
	if m.closer != nil {
		m.closer()
	}
}

// Run subscribes to hub and mirrors events until the subscriber lags
// out. It never returns an error to its caller:
// publish failures are logged and skipped, since mirroring is purely
// observational and must never affect replication correctness.
func (m *Mirror) Run(hub *broadcast.Hub) {
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	for {
		select {
		case <-sub.Lagged():
			kvlog.Warn("natsmirror: lagged behind the broadcast backlog, stopping")
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := m.conn.Publish(m.subject, resp.Encode(event)); err != nil {
				kvlog.Warnf("natsmirror: publish failed: %v", err)
			}
		}
	}
}

package engine

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/command"
	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/cannero/kvreplica/internal/resp"
	"github.com/cannero/kvreplica/internal/store"
)

// snapshotHex is the fixed, opaque snapshot payload every PSYNC full
// resync transfers. Its content is never interpreted by this
// implementation (spec §4 Non-goals: durable storage) — it exists only
// so the wire exchange matches what a follower's handshake expects.
const snapshotHex = "524544495330303131fa0972656469732d76657205372e322e30fa0a72656469732d62697473c040fa056374696d65c26d08bc65fa08757365642d6d656dc2b0c41000fa08616f662d62617365c000fff06e3bfec0ff5aa2"

func snapshotPayload() string {
	raw, err := hex.DecodeString(snapshotHex)
	if err != nil {
		// snapshotHex is a compile-time constant; a decode failure here
		// means the constant itself was mistyped, not a runtime fault.
		panic(fmt.Sprintf("engine: invalid snapshot hex constant: %v", err))
	}
	return string(raw)
}

// PsyncResult reports that a connection just completed a PSYNC exchange
// and must transition from Serving to Replicating (spec §4.6): the
// caller is expected to subscribe to the hub and hand the connection
// over to a pure write-forwarding loop from this point on.
type PsyncResult struct{}

// Leader is the command engine a leader connection dispatches through.
// It owns no connection state of its own; everything it needs is
// either shared (Store, ServerConfig, broadcast.Hub) or passed in by
// the caller. PSYNC completion is reported through the *PsyncResult
// Dispatch returns, and internal/leaderconn acts on it.
type Leader struct {
	store *store.Store
	state *ServerConfig
	hub   *broadcast.Hub
}

func NewLeader(s *store.Store, state *ServerConfig, hub *broadcast.Hub) *Leader {
	return &Leader{store: s, state: state, hub: hub}
}

// Dispatch executes a single parsed command and returns the reply
// frame(s) to write back to the client. A non-nil PsyncResult means the
// caller must upgrade this connection to a replica session after
// writing the returned frames.
func (l *Leader) Dispatch(cmd command.Command) ([]resp.Frame, *PsyncResult, error) {
	commandsTotal.WithLabelValues(strings.ToLower(cmd.Kind.String())).Inc()

	switch cmd.Kind {
	case command.Ping:
		return []resp.Frame{resp.NewSimpleString("PONG")}, nil, nil

	case command.Echo:
		return []resp.Frame{cmd.EchoFrame}, nil, nil

	case command.Get:
		value, ok := l.store.Get(cmd.Key)
		if !ok {
			return []resp.Frame{resp.NewNullBulkString()}, nil, nil
		}
		return []resp.Frame{value}, nil, nil

	case command.Set:
		l.store.Set(cmd.Key, cmd.Value, cmd.PX)
		storeKeys.Set(float64(l.store.Len()))
		// The store mutation happens before the broadcast publish so a
		// follower that catches this event can never observe a write it
		// hasn't been told about yet (spec §4.4).
		l.hub.Publish(cmd.Raw)
		return []resp.Frame{resp.NewSimpleString("OK")}, nil, nil

	case command.Info:
		if len(cmd.Sections) != 1 || !strings.EqualFold(cmd.Sections[0], "replication") {
			return nil, nil, fmt.Errorf("engine: unsupported INFO section %v", cmd.Sections)
		}
		return []resp.Frame{l.replicationInfo()}, nil, nil

	case command.Replconf:
		return []resp.Frame{resp.NewSimpleString("OK")}, nil, nil

	case command.Psync:
		kvlog.Info("leader: PSYNC received, starting full resync")
		l.state.Followers().Inc()
		connectedFollowers.Set(float64(l.state.Followers().Load()))
		frames := []resp.Frame{
			resp.NewSimpleString(fmt.Sprintf("FULLRESYNC %s 0", l.state.ReplID)),
			resp.NewSnapshot(snapshotPayload()),
		}
		return frames, &PsyncResult{}, nil

	case command.Wait:
		// WAIT is parsed but reserved: spec §9 leaves consensus on
		// acknowledged-replica counts an open question, so it is
		// rejected rather than given a dishonest reply.
		return nil, nil, fmt.Errorf("engine: WAIT is not implemented")

	default:
		return nil, nil, fmt.Errorf("engine: unhandled command kind %v", cmd.Kind)
	}
}

// FollowerDisconnected must be called exactly once when a replicating
// connection's write loop exits, so the follower counter and its
// Prometheus gauge fall back to reflect the still-attached sessions
// (spec §9 REDESIGN FLAGS: the counter must support reaching zero).
func (l *Leader) FollowerDisconnected() {
	l.state.Followers().Dec()
	connectedFollowers.Set(float64(l.state.Followers().Load()))
}

func (l *Leader) replicationInfo() resp.Frame {
	body := fmt.Sprintf(
		"role:%s\nmaster_replid:%s\nmaster_repl_offset:%d",
		l.state.Role, l.state.ReplID, l.state.ReplOffset,
	)
	return resp.NewBulkString(body)
}

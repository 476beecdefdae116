package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/command"
	"github.com/cannero/kvreplica/internal/resp"
	"github.com/cannero/kvreplica/internal/store"
)

// Follower is the apply-only engine a follower's replication stream is
// driven through (spec §4.5): it never produces a client-facing reply,
// only SET application and REPLCONF GETACK→ACK probes.
type Follower struct {
	store        *store.Store
	hub          *broadcast.Hub
	bytesApplied int64
}

func NewFollower(s *store.Store, hub *broadcast.Hub) *Follower {
	return &Follower{store: s, hub: hub}
}

// BytesApplied returns the current pre-increment counter value, i.e.
// the value that would be reported if a GETACK arrived right now.
func (f *Follower) BytesApplied() int64 { return f.bytesApplied }

// Apply drives one replicated frame through the apply-only path.
// frameLen is the serialized byte length of raw as it arrived on the
// wire; the counter is advanced by that amount BEFORE raw is parsed,
// so an ACK produced from this call reflects bytes applied strictly
// before the frame now being handled (spec §4.5, §6 FollowerState).
func (f *Follower) Apply(raw resp.Frame, frameLen int) (*resp.Frame, error) {
	preIncrement := f.bytesApplied
	f.bytesApplied += int64(frameLen)

	cmd, err := command.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("engine: follower apply: %w", err)
	}

	switch cmd.Kind {
	case command.Ping:
		return nil, nil

	case command.Set:
		f.store.Set(cmd.Key, cmd.Value, cmd.PX)
		storeKeys.Set(float64(f.store.Len()))
		f.hub.Publish(cmd.Raw)
		return nil, nil

	case command.Replconf:
		if !strings.EqualFold(cmd.ReplconfName, "GETACK") {
			return nil, fmt.Errorf("engine: follower apply: only GETACK is handled, got %s", cmd.ReplconfName)
		}
		// The ACK reports bytes_applied as of just before this GETACK
		// frame's own length was counted (spec §4.5/§6): the probe
		// itself is not a replicated write and must not inflate the
		// offset the leader believes was applied.
		ack := resp.NewArray(
			resp.NewBulkString("REPLCONF"),
			resp.NewBulkString("ACK"),
			resp.NewBulkString(strconv.FormatInt(preIncrement, 10)),
		)
		return &ack, nil

	default:
		return nil, fmt.Errorf("engine: follower apply: command %s not valid on a replication stream", cmd.Kind)
	}
}

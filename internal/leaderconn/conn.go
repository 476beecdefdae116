// Package leaderconn implements the leader-side per-connection state
// machine of spec §4.6: Serving, which reads/decodes/dispatches client
// commands, and Replicating, the pure-writer mode a connection
// transparently upgrades into after a successful PSYNC.
package leaderconn

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/command"
	"github.com/cannero/kvreplica/internal/engine"
	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/cannero/kvreplica/internal/resp"
)

const readBufferSize = 4096

// Conn drives a single accepted client socket through the Serving and,
// if it issues PSYNC, Replicating states. Codec/parse errors are never
// written back to the client as error frames (spec §7's documented
// simplification); the socket is simply closed.
type Conn struct {
	netConn net.Conn
	leader  *engine.Leader
	hub     *broadcast.Hub
}

func New(netConn net.Conn, leader *engine.Leader, hub *broadcast.Hub) *Conn {
	return &Conn{netConn: netConn, leader: leader, hub: hub}
}

// Serve runs until the socket is closed, an I/O or protocol error
// occurs, or (in the Replicating loop) the subscriber lags past the
// backlog or ctx is cancelled. Per spec §5, an error here only ends
// this connection's task.
func (c *Conn) Serve(ctx context.Context) {
	defer c.netConn.Close()

	psync, err := c.serving()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			kvlog.Debugf("leaderconn: serving %s: %v", c.netConn.RemoteAddr(), err)
		}
		return
	}
	if psync == nil {
		return
	}

	kvlog.Infof("leaderconn: %s upgraded to replication", c.netConn.RemoteAddr())
	if err := c.replicating(ctx); err != nil {
		kvlog.Debugf("leaderconn: replicating %s: %v", c.netConn.RemoteAddr(), err)
	}
}

// serving is the read/decode/dispatch/write loop (spec §4.6 Serving).
// It returns a non-nil *engine.PsyncResult the moment a PSYNC dispatch
// completes, at which point the read loop is abandoned for good —
// UpgradingReplica has no observable code of its own, it's simply the
// point this function returns.
func (c *Conn) serving() (*engine.PsyncResult, error) {
	var buf []byte
	for {
		chunk := make([]byte, readBufferSize)
		n, err := c.netConn.Read(chunk)
		if n == 0 && err != nil {
			return nil, err
		}
		buf = append(buf, chunk[:n]...)

		frames, rest, decodeErr := resp.DecodeAll(buf)
		if decodeErr != nil {
			return nil, decodeErr
		}
		buf = rest

		for _, frame := range frames {
			cmd, parseErr := command.Parse(frame)
			if parseErr != nil {
				return nil, parseErr
			}

			replies, psync, dispatchErr := c.leader.Dispatch(cmd)
			if dispatchErr != nil {
				return nil, dispatchErr
			}

			// All reply frames of one command go out in a single write, so
			// a PSYNC's FULLRESYNC line and snapshot arrive together.
			var out []byte
			for _, reply := range replies {
				out = append(out, resp.Encode(reply)...)
			}
			if _, werr := c.netConn.Write(out); werr != nil {
				return nil, werr
			}

			if psync != nil {
				return psync, nil
			}
		}

		if err != nil {
			return nil, err
		}
	}
}

// replicating subscribes to the hub and forwards every WriteEvent to
// the socket as bytes, terminating on socket error, a lagged
// subscriber, or ctx cancellation (spec §4.6 Replicating, §4.7).
func (c *Conn) replicating(ctx context.Context) error {
	sub := c.hub.Subscribe()
	defer c.hub.Unsubscribe(sub)
	defer c.leader.FollowerDisconnected()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Lagged():
			return errors.New("leaderconn: subscriber lagged past backlog")
		case event, ok := <-sub.Events():
			if !ok {
				return errors.New("leaderconn: broadcast channel closed")
			}
			if _, err := c.netConn.Write(resp.Encode(event)); err != nil {
				return err
			}
		}
	}
}

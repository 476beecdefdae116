// Package followerclient implements the follower-side handshake and
// apply loop of spec §4.8: connect to a leader, perform the four-step
// PING/REPLCONF/REPLCONF/PSYNC handshake, discard the snapshot, then
// apply the replicated command stream forever. There is no retry or
// reconnect logic — any error here is fatal to replication (but not to
// the process's own leader-listener, which keeps serving regardless of
// role per spec §4.9).
package followerclient

import (
	"fmt"
	"net"
	"strings"

	"github.com/cannero/kvreplica/internal/broadcast"
	"github.com/cannero/kvreplica/internal/engine"
	"github.com/cannero/kvreplica/internal/kvlog"
	"github.com/cannero/kvreplica/internal/resp"
	"github.com/cannero/kvreplica/internal/store"
)

const readBufferSize = 4096

// ProtocolError marks a handshake reply that didn't match what spec
// §4.8 requires at that step.
type ProtocolError struct{ Msg string }

func (e *ProtocolError) Error() string { return e.Msg }

func protoErrf(format string, args ...interface{}) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

// Client owns the socket to the leader and the buffered, partially
// decoded read state across handshake steps and the apply loop.
type Client struct {
	conn net.Conn
	buf  []byte
}

// Run connects to leaderAddr, performs the handshake advertising
// ownPort as this process's own listening port, then applies the
// replicated stream into s forever (republishing applied writes onto
// hub for any local subscribers, per spec §4.5). It returns only on
// error.
func Run(leaderAddr string, ownPort int, s *store.Store, hub *broadcast.Hub) error {
	conn, err := net.Dial("tcp", leaderAddr)
	if err != nil {
		return fmt.Errorf("followerclient: dial %s: %w", leaderAddr, err)
	}
	defer conn.Close()

	c := &Client{conn: conn}
	if err := c.handshake(ownPort); err != nil {
		return err
	}

	kvlog.Info("followerclient: handshake complete, entering apply loop")
	follower := engine.NewFollower(s, hub)
	return c.applyLoop(follower)
}

func (c *Client) handshake(ownPort int) error {
	if err := c.sendAndExpect(
		resp.NewArray(resp.NewBulkString("PING")),
		isPong,
		"PING",
	); err != nil {
		return err
	}

	if err := c.sendAndExpect(
		replconf("listening-port", fmt.Sprintf("%d", ownPort)),
		isOK,
		"REPLCONF listening-port",
	); err != nil {
		return err
	}

	if err := c.sendAndExpect(
		replconf("capa", "psync2"),
		isOK,
		"REPLCONF capa",
	); err != nil {
		return err
	}

	reply, err := c.sendAndRead(resp.NewArray(
		resp.NewBulkString("PSYNC"), resp.NewBulkString("?"), resp.NewBulkString("-1")))
	if err != nil {
		return err
	}
	if !isFullresync(reply) {
		return protoErrf("followerclient: wrong psync reply: %s", reply)
	}

	return c.consumeSnapshot()
}

// consumeSnapshot handles the three coalescing cases spec §4.8(6)
// describes: the FULLRESYNC reply, read in a single DecodeAll call,
// may have already been accompanied by the Snapshot frame (and
// possibly replicated commands right after it) in the same read; if
// not, it is read on its own in a subsequent read.
func (c *Client) consumeSnapshot() error {
	for {
		frames, rest, err := resp.DecodeAll(c.buf)
		if err == nil {
			for i, f := range frames {
				if f.Kind == resp.Snapshot {
					c.buf = framesToBuf(frames[i+1:])
					c.buf = append(c.buf, rest...)
					return nil
				}
			}
		}

		chunk := make([]byte, readBufferSize)
		n, readErr := c.conn.Read(chunk)
		if n == 0 && readErr != nil {
			return fmt.Errorf("followerclient: reading snapshot: %w", readErr)
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

// framesToBuf re-encodes already-decoded frames so they can be
// prepended back onto the raw buffer the apply loop consumes; used
// only for frames decoded incidentally while hunting for the Snapshot
// boundary during the coalesced-read handling above.
func framesToBuf(frames []resp.Frame) []byte {
	var out []byte
	for _, f := range frames {
		out = append(out, resp.Encode(f)...)
	}
	return out
}

func (c *Client) applyLoop(follower *engine.Follower) error {
	for {
		if err := c.applyOneBatch(follower); err != nil {
			return err
		}
	}
}

// applyOneBatch reads, decodes, and applies exactly one batch of
// frames (everything a single network read happened to contain). It is
// split out from applyLoop so it can be driven once at a time in
// tests without looping forever.
func (c *Client) applyOneBatch(follower *engine.Follower) error {
	frames, rest, decoded, err := c.decodeNextBatch()
	if err != nil {
		return err
	}
	c.buf = rest

	for i, frame := range frames {
		frameLen := len(decoded[i])
		reply, applyErr := follower.Apply(frame, frameLen)
		if applyErr != nil {
			return fmt.Errorf("followerclient: %w", applyErr)
		}
		if reply != nil {
			if _, werr := c.conn.Write(resp.Encode(*reply)); werr != nil {
				return werr
			}
		}
	}
	return nil
}

// decodeNextBatch reads more bytes if the current buffer holds no
// complete frame, then decodes everything available. It also returns
// each decoded frame's serialized bytes (from encodedLengths, which
// re-encodes the frame) so the apply loop can count them.
func (c *Client) decodeNextBatch() ([]resp.Frame, []byte, [][]byte, error) {
	for {
		frames, rest, err := resp.DecodeAll(c.buf)
		if err == nil && len(frames) > 0 {
			return frames, rest, encodedLengths(frames), nil
		}

		chunk := make([]byte, readBufferSize)
		n, readErr := c.conn.Read(chunk)
		if n == 0 && readErr != nil {
			return nil, nil, nil, fmt.Errorf("followerclient: reading replication stream: %w", readErr)
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

// encodedLengths re-derives each frame's own serialized byte length by
// re-encoding it; every frame kind the replication stream carries (SET
// and REPLCONF arrays) encodes unambiguously, so this equals the bytes
// actually consumed off the wire for that frame.
func encodedLengths(frames []resp.Frame) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = resp.Encode(f)
	}
	return out
}

func replconf(name, value string) resp.Frame {
	return resp.NewArray(resp.NewBulkString("REPLCONF"), resp.NewBulkString(name), resp.NewBulkString(value))
}

func (c *Client) sendAndRead(cmd resp.Frame) (resp.Frame, error) {
	if _, err := c.conn.Write(resp.Encode(cmd)); err != nil {
		return resp.Frame{}, fmt.Errorf("followerclient: write: %w", err)
	}

	for {
		frames, rest, err := resp.DecodeAll(c.buf)
		if err == nil && len(frames) > 0 {
			c.buf = append(framesToBuf(frames[1:]), rest...)
			return frames[0], nil
		}

		chunk := make([]byte, readBufferSize)
		n, readErr := c.conn.Read(chunk)
		if n == 0 && readErr != nil {
			return resp.Frame{}, fmt.Errorf("followerclient: read: %w", readErr)
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

func (c *Client) sendAndExpect(cmd resp.Frame, valid func(resp.Frame) bool, step string) error {
	reply, err := c.sendAndRead(cmd)
	if err != nil {
		return err
	}
	if !valid(reply) {
		return protoErrf("followerclient: unexpected reply to %s: %s", step, reply)
	}
	return nil
}

func isPong(f resp.Frame) bool {
	return (f.Kind == resp.SimpleString || f.Kind == resp.BulkString) && strings.EqualFold(f.Str, "PONG")
}

func isOK(f resp.Frame) bool {
	return (f.Kind == resp.SimpleString || f.Kind == resp.BulkString) && strings.EqualFold(f.Str, "OK")
}

func isFullresync(f resp.Frame) bool {
	return f.Kind == resp.SimpleString && strings.HasPrefix(strings.ToUpper(f.Str), "FULLRESYNC")
}

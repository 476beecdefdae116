package resp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Frame{
		NewSimpleString("OK"),
		NewBulkString(""),
		NewBulkString("hello\nworld"),
		NewNullBulkString(),
		NewInteger(-1939),
		NewInteger(1939),
		NewArray(NewBulkString("SET"), NewBulkString("k"), NewBulkString("v")),
		NewArray(),
		NewArray(NewArray(NewSimpleString("a")), NewBulkString("b")),
	}

	for _, f := range cases {
		encoded := Encode(f)
		decoded, rest, err := DecodeAll(encoded)
		require.NoError(t, err)
		assert.Empty(t, rest)
		require.Len(t, decoded, 1)
		assert.True(t, f.Equal(decoded[0]), "round-trip mismatch for %s", f)
	}
}

func TestDecodeAllMultipleFrames(t *testing.T) {
	buf := append(Encode(NewArray(NewBulkString("SET"), NewBulkString("bar"), NewBulkString("456"))),
		Encode(NewArray(NewBulkString("SET"), NewBulkString("baz"), NewBulkString("789")))...)

	frames, rest, err := DecodeAll(buf)
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 2)
	assert.Equal(t, "bar", frames[0].Items[1].Str)
	assert.Equal(t, "baz", frames[1].Items[1].Str)
}

func TestDecodeNullBulkString(t *testing.T) {
	frames, rest, err := DecodeAll([]byte("$-1\r\n"))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 1)
	assert.Equal(t, NullBulkString, frames[0].Kind)
}

func TestDecodeEmptyBulkString(t *testing.T) {
	frames, _, err := DecodeAll([]byte("$0\r\n\r\n"))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "", frames[0].Str)
}

func TestSnapshotDisambiguation(t *testing.T) {
	payload := "REDIS0011" + "garbage-no-terminator-here"
	wire := "$" + itoa(len(payload)) + "\r\n" + payload

	frames, rest, err := DecodeAll([]byte(wire))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 1)
	assert.Equal(t, Snapshot, frames[0].Kind)
	assert.Equal(t, payload, frames[0].Str)
}

func TestSnapshotFollowedByCommand(t *testing.T) {
	payload := "REDIS0011" + "restofsnapshotbytes"
	wire := "$" + itoa(len(payload)) + "\r\n" + payload
	wire += string(Encode(NewArray(NewBulkString("PING"))))

	frames, rest, err := DecodeAll([]byte(wire))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 2)
	assert.Equal(t, Snapshot, frames[0].Kind)
	assert.Equal(t, Array, frames[1].Kind)
}

func TestShortMagicStillBulkString(t *testing.T) {
	// Payload shorter than 6 bytes never triggers the Snapshot rule
	// even if it happens to start with part of the magic.
	frames, rest, err := DecodeAll([]byte("$5\r\nREDIS\r\n"))
	require.NoError(t, err)
	assert.Empty(t, rest)
	require.Len(t, frames, 1)
	assert.Equal(t, BulkString, frames[0].Kind)
}

func TestDecodeErrors(t *testing.T) {
	cases := []string{
		"",
		"?unknown\r\n",
		"$abc\r\n",
		":notanumber\r\n",
		"*2\r\n+only one\r\n",
		"$100\r\nshort\r\n",
	}
	for _, c := range cases {
		_, _, err := DecodeAll([]byte(c))
		assert.Error(t, err, "expected error decoding %q", c)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

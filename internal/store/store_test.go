package store

import (
	"testing"
	"time"

	"github.com/cannero/kvreplica/internal/resp"
	"github.com/stretchr/testify/assert"
)

func TestSetGet(t *testing.T) {
	s := New()
	key := resp.NewBulkString("k")
	val := resp.NewBulkString("v")

	s.Set(key, val, nil)

	got, ok := s.Get(key)
	assert.True(t, ok)
	assert.True(t, val.Equal(got))
}

func TestGetMissing(t *testing.T) {
	s := New()
	_, ok := s.Get(resp.NewBulkString("nope"))
	assert.False(t, ok)
}

func TestExpiryNegativeAlreadyExpired(t *testing.T) {
	s := New()
	key := resp.NewBulkString("k")
	px := int64(-100)
	s.Set(key, resp.NewBulkString("v"), &px)

	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestExpiryWithinWindow(t *testing.T) {
	s := New()
	key := resp.NewBulkString("k")
	px := int64(50)
	s.Set(key, resp.NewBulkString("v"), &px)

	time.Sleep(10 * time.Millisecond)
	_, ok := s.Get(key)
	assert.True(t, ok)
}

func TestExpiryAfterWindow(t *testing.T) {
	s := New()
	key := resp.NewBulkString("k")
	px := int64(20)
	s.Set(key, resp.NewBulkString("v"), &px)

	time.Sleep(60 * time.Millisecond)
	_, ok := s.Get(key)
	assert.False(t, ok)
}

func TestOverwrite(t *testing.T) {
	s := New()
	key := resp.NewBulkString("k")
	s.Set(key, resp.NewBulkString("v1"), nil)
	s.Set(key, resp.NewBulkString("v2"), nil)

	got, ok := s.Get(key)
	assert.True(t, ok)
	assert.Equal(t, "v2", got.Str)
	assert.Equal(t, 1, s.Len())
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-redis-url::::")
	require.Error(t, err)
}

func TestNew_ValidURL(t *testing.T) {
	s, err := New("redis://127.0.0.1:6379/0")
	require.NoError(t, err)
	require.NotNil(t, s)
	defer s.Close()
}

func TestFakeStore_GetSetNotFound(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	_, err := f.Get(ctx, "users.u001")
	assert.ErrorIs(t, err, ErrNotFound)

	f.Seed("users.u001", `{"name":"Alice"}`)
	v, err := f.Get(ctx, "users.u001")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Alice"}`, v)
}

func TestFakeStore_GetDelIsAtomicSingleUse(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.Seed("auth:tok1", `{"user_id":"u001"}`)

	v, err := f.GetDel(ctx, "auth:tok1")
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"u001"}`, v)

	_, err = f.GetDel(ctx, "auth:tok1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFakeStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	f.SeedTTL("auth:tok1", "payload", time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	_, err := f.Get(ctx, "auth:tok1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFakeStore_ScanPaginatesAndCaps(t *testing.T) {
	ctx := context.Background()
	f := NewFake()
	for i := 0; i < 5; i++ {
		f.Seed("users."+string(rune('a'+i)), "{}")
	}

	var all []string
	cursor := uint64(0)
	for {
		keys, next, err := f.Scan(ctx, cursor, "users.*", 2)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(keys), 2)
		all = append(all, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	assert.Len(t, all, 5)
}

func TestFakeStore_IncrAndExpireFixedWindow(t *testing.T) {
	ctx := context.Background()
	f := NewFake()

	n, err := f.Eval(ctx, "incr-expire-script", []string{"ratelimit:1.2.3.4"}, int64(60))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	exp, ok := f.expireAt["ratelimit:1.2.3.4"]
	require.True(t, ok)

	n, err = f.Eval(ctx, "incr-expire-script", []string{"ratelimit:1.2.3.4"}, int64(60))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, exp, f.expireAt["ratelimit:1.2.3.4"])
}

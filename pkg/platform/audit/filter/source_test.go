package filter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditd/pkg/platform/audit"
)

type sourceFunc func(ctx context.Context) (map[Key]bool, error)

func (f sourceFunc) Load(ctx context.Context) (map[Key]bool, error) { return f(ctx) }

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStaticSource_LoadReturnsCopy(t *testing.T) {
	src := StaticSource{{Realm: "/", Topic: audit.TopicAccess}: true}

	got, err := src.Load(context.Background())
	require.NoError(t, err)
	got[Key{Realm: "/", Topic: audit.TopicAccess}] = false

	assert.True(t, src[Key{Realm: "/", Topic: audit.TopicAccess}])
}

func TestRefresher_RefreshReplacesSnapshot(t *testing.T) {
	f := New()
	var reloads atomic.Int32
	r := NewRefresher(f, StaticSource{{Realm: "/", Topic: audit.TopicAuthentication}: true},
		WithReloadHook(func(n int, err error) {
			assert.NoError(t, err)
			assert.Equal(t, 1, n)
			reloads.Add(1)
		}))

	require.NoError(t, r.Refresh(context.Background()))
	assert.True(t, f.IsAuditing("/", audit.TopicAuthentication))
	assert.EqualValues(t, 1, reloads.Load())
}

func TestRefresher_FailedLoadKeepsPreviousSnapshot(t *testing.T) {
	f := NewWithDecisions(map[Key]bool{{Realm: "/", Topic: audit.TopicAccess}: true})
	boom := errors.New("config store down")
	r := NewRefresher(f, sourceFunc(func(context.Context) (map[Key]bool, error) {
		return nil, boom
	}))

	err := r.Refresh(context.Background())
	require.ErrorIs(t, err, boom)
	assert.True(t, f.IsAuditing("/", audit.TopicAccess))
}

func TestRefresher_FailedFirstLoadStaysClosed(t *testing.T) {
	f := New()
	r := NewRefresher(f, sourceFunc(func(context.Context) (map[Key]bool, error) {
		return nil, errors.New("not yet")
	}))

	require.Error(t, r.Refresh(context.Background()))
	assert.False(t, f.Loaded())
	assert.False(t, f.IsAuditing("/", audit.TopicAccess))
}

func TestRefresher_RunReloadsUntilCancelled(t *testing.T) {
	f := New()
	var calls atomic.Int32
	src := sourceFunc(func(context.Context) (map[Key]bool, error) {
		n := calls.Add(1)
		if n == 2 {
			return nil, errors.New("transient")
		}
		return map[Key]bool{{Realm: "/", Topic: audit.TopicConfig}: n%2 == 1}, nil
	})
	r := NewRefresher(f, src,
		WithInterval(5*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop after cancel")
	}
	assert.True(t, f.Loaded())
}

func TestRedisSource_LoadAndSet(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	src := NewRedisSource(client, "")

	mr.HSet(DefaultRedisKey, "/|authentication", "true")
	mr.HSet(DefaultRedisKey, "/sub|realm|access", "false")

	got, err := src.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Key]bool{
		{Realm: "/", Topic: audit.TopicAuthentication}:  true,
		{Realm: "/sub|realm", Topic: audit.TopicAccess}: false,
	}, got)

	require.NoError(t, src.Set(ctx, Key{Realm: "/", Topic: audit.TopicConfig}, true))
	assert.Equal(t, "true", mr.HGet(DefaultRedisKey, "/|config"))
}

func TestRedisSource_EmptyHashLoadsEmptySnapshot(t *testing.T) {
	_, client := newTestRedis(t)

	got, err := NewRedisSource(client, "custom:filters").Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestRedisSource_MalformedEntries(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"missing separator", "authentication", "true"},
		{"unknown topic", "/|billing", "true"},
		{"empty realm", "|access", "true"},
		{"non boolean", "/|access", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := newTestRedis(t)
			mr.HSet(DefaultRedisKey, tt.field, tt.value)

			_, err := NewRedisSource(client, "").Load(context.Background())
			require.Error(t, err)
		})
	}
}

func TestRedisSource_ConnectionFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()

	_, err := NewRedisSource(client, "").Load(context.Background())
	require.Error(t, err)
}

package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditd/internal/platform/config"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("empty url is not configured", func(t *testing.T) {
		c, err := New(ctx, config.Redis{})
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := New(ctx, config.Redis{URL: "://nope"})
		assert.Error(t, err)
	})

	t.Run("connects and reports health", func(t *testing.T) {
		mr := miniredis.RunT(t)
		c, err := New(ctx, config.Redis{URL: "redis://" + mr.Addr(), PoolSize: 2})
		require.NoError(t, err)
		defer c.Close()

		require.NoError(t, c.Health(ctx))
		mr.Close()
		assert.Error(t, c.Health(ctx))
	})
}

package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
)

func TestIntegration_MGet(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("skipping redis integration test: TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := NewClient(ctx, config.RedisConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	prefix := fmt.Sprintf("test:%d:", time.Now().UnixNano())
	require.NoError(t, c.Set(ctx, prefix+"1", "Cat", time.Minute))

	vals, found, err := c.MGet(ctx, prefix+"1", prefix+"2")
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, found)
	assert.Equal(t, "Cat", vals[0])

	_, err = c.Get(ctx, prefix+"2")
	assert.True(t, IsNilError(err))

	deleted, err := c.FlushByPattern(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

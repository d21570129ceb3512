package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/thermo-emulator/internal/config"
)

// 这些测试需要本地 Redis，不可用时跳过
func newTestStore(t *testing.T, capacity int64) *Store {
	t.Helper()
	id := uuid.NewString()
	s, err := Open(cfgpkg.RedisConfig{
		Enabled:      true,
		Addr:         "localhost:6379",
		PoolSize:     2,
		DialTimeout:  200 * time.Millisecond,
		Channel:      "thermo:test:alarm:" + id,
		HistoryKey:   "thermo:test:history:" + id,
		HistoryLimit: capacity,
	})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() {
		s.rdb.Del(context.Background(), s.HistoryKey())
		_ = s.Close()
	})
	return s
}

func TestOpen_Disabled(t *testing.T) {
	s, err := Open(cfgpkg.RedisConfig{Enabled: false})
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewStore_Defaults(t *testing.T) {
	s := NewStore(nil, "", "", 0)
	assert.Equal(t, defaultChannel, s.Channel())
	assert.Equal(t, defaultHistoryKey, s.HistoryKey())
	assert.Equal(t, int64(defaultHistoryLimit), s.capacity)
	assert.NoError(t, s.Close())
}

func TestStore_CappedHistory(t *testing.T) {
	s := newTestStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, []byte(fmt.Sprintf("ev-%d", i))))
	}

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	recent, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "ev-4", string(recent[0]))
	assert.Equal(t, "ev-3", string(recent[1]))

	all, err := s.Recent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.HealthCheck(ctx))
	assert.NotNil(t, s.Stats())
}

func TestStore_Publish(t *testing.T) {
	s := newTestStore(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	sub := s.rdb.Subscribe(ctx, s.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Publish(ctx, []byte("payload")))
	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "payload", msg.Payload)
}

func TestStore_PublishFailureNamesChannel(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	s := NewStore(rdb, "thermo:down", "", 0)
	defer s.Close()

	err := s.Publish(context.Background(), []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thermo:down")
	assert.Error(t, s.Append(context.Background(), []byte("x")))
}

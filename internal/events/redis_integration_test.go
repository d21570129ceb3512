package events

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisstorage "github.com/taoyao-code/thermo-emulator/internal/storage/redis"
)

// 需要本地 Redis（localhost:6379），不可用时跳过
func TestRedisPublisher_PubSubAndHistory(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379", DialTimeout: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		t.Skipf("redis not available: %v", err)
	}

	ev := sampleEvent()
	store := redisstorage.NewStore(rdb, "thermo:test:"+ev.ID, "thermo:test:history:"+ev.ID, 10)
	defer store.Close()
	defer rdb.Del(context.Background(), store.HistoryKey())

	sub := rdb.Subscribe(ctx, store.Channel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewRedisPublisher(store, EncodingJSON, nil).Publish(ctx, ev))
	require.NoError(t, NewHistoryPublisher(store, EncodingMsgpack).Publish(ctx, ev))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	got, err := Decode(EncodingJSON, []byte(msg.Payload))
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	got, err = Decode(EncodingMsgpack, recent[0])
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
}

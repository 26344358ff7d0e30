package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisQueue) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := NewRedisQueue(client, "")
	q.poll = 100 * time.Millisecond
	return mr, q
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "checkin_log", Body: []byte(`{"a":1}`)}))
	assert.Equal(t, 1, q.Len())

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	msg := receive(t, ch)
	assert.Equal(t, "checkin_log", msg.Type)
	assert.Equal(t, `{"a":1}`, string(msg.Body))

	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestInMemory_PublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "y"}), context.DeadlineExceeded)
}

func TestRedisQueue_PublishUsesList(t *testing.T) {
	mr, q := setupTestRedis(t)

	require.NoError(t, q.Publish(context.Background(), Message{Type: "checkin_log", Body: []byte("a|b")}))

	items, err := mr.List(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, []string{"checkin_log|a|b"}, items)
}

func TestRedisQueue_ConsumeFIFO(t *testing.T) {
	_, q := setupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: "checkin_log", Body: []byte("first")}))
	require.NoError(t, q.Publish(ctx, Message{Type: "checkin_log", Body: []byte("second")}))

	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	assert.Equal(t, "first", string(receive(t, ch).Body))
	assert.Equal(t, "second", string(receive(t, ch).Body))
}

func TestRedisQueue_ConsumeFailsWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	defer client.Close()

	_, err := NewRedisQueue(client, "k").Consume(context.Background())
	assert.Error(t, err)
}

func TestDeserialize(t *testing.T) {
	assert.Equal(t, Message{Type: "t", Body: []byte("x|y")}, deserialize("t|x|y"))
	assert.Equal(t, Message{Body: []byte("plain")}, deserialize("plain"))
}

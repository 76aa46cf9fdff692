package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{ID: "1", Type: "new_content", Body: json.RawMessage(`{}`)}))
	require.NoError(t, q.Publish(ctx, Message{ID: "2", Type: "summary", Body: json.RawMessage(`{}`)}))
	assert.Equal(t, 2, q.Len())

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	first := <-ch
	second := <-ch
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "2", second.ID)

	cancel()
	for range ch {
	}
}

func TestInMemoryPublishFullRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: "b"}), context.DeadlineExceeded)
}

func TestEncodeDecode(t *testing.T) {
	msg := Message{ID: "x", Type: "error", Time: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC), Body: json.RawMessage(`{"message":"boom"}`)}
	raw, err := Encode(msg)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)
	assert.True(t, msg.Time.Equal(got.Time))
	assert.JSONEq(t, `{"message":"boom"}`, string(got.Body))

	_, err = Decode([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`Type|Body`))
	assert.Error(t, err)
}

func TestBackoff(t *testing.T) {
	assert.True(t, backoff(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	assert.False(t, backoff(ctx, time.Minute))
	assert.Less(t, time.Since(start), time.Second)
}

func TestRedisConsumeStopsDuringBackoff(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	defer client.Close()
	q := NewRedisQueue(client, "")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	ch, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(700 * time.Millisecond):
		t.Fatal("consumer kept sleeping after cancellation")
	}
}

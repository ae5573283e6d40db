package peer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialGivesUpAfterMaxAttempts(t *testing.T) {
	var mu sync.Mutex
	var attempts int
	dialErr := errors.New("refused")

	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws/video", "token", "alice",
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}),
		WithDialFunc(func(ctx context.Context, rawURL string) (*websocket.Conn, error) {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return nil, dialErr
		}))

	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrPermanentlyDown))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, attempts)
}

func TestDialHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws/video", "token", "alice",
		WithRetryPolicy(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Minute, MaxDelay: time.Minute}),
		WithDialFunc(func(ctx context.Context, rawURL string) (*websocket.Conn, error) {
			return nil, errors.New("refused")
		}))

	require.NotNil(t, err)
	assert.Equal(t, context.Canceled, err)
}

func TestDialAppendsToken(t *testing.T) {
	var dialedURL string

	_, err := Dial(context.Background(), "ws://example.test/ws/video", "secret-token", "alice",
		WithRetryPolicy(RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}),
		WithDialFunc(func(ctx context.Context, rawURL string) (*websocket.Conn, error) {
			dialedURL = rawURL
			return nil, errors.New("refused")
		}))

	require.NotNil(t, err)
	assert.Contains(t, dialedURL, "token=secret-token")
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NEXESMISSION/kestiv2-sub001/internal/ratelimit"
)

// cheap keeps the tests fast; production uses DefaultParams.
var cheap = Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashPIN(t *testing.T) {
	h1, err := HashPIN("4821", cheap)
	require.NoError(t, err)
	h2, err := HashPIN("4821", cheap)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(h1, "$argon2id$v=19$m=1024,t=1,p=1$"))
	assert.NotEqual(t, h1, h2, "salts must differ")

	ok, err := VerifyPIN("4821", h1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPIN("4822", h1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyPINRejectsMalformedHash(t *testing.T) {
	for _, h := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!$aGFzaA",
	} {
		_, err := VerifyPIN("1234", h)
		assert.ErrorIs(t, err, ErrInvalidHash, h)
	}
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestPINVerifierLockout(t *testing.T) {
	ctx := context.Background()
	hash, err := HashPIN("0000", cheap)
	require.NoError(t, err)

	clock := &stepClock{now: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)}
	limiter := ratelimit.New(ratelimit.NewMemoryStorage(clock),
		ratelimit.WithMaxAttempts(3), ratelimit.WithCooldown(time.Minute))
	v := NewPINVerifier(limiter, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err = v.Verify(ctx, "desk", "1111", hash)
	var wrong *WrongPINError
	require.True(t, errors.As(err, &wrong))
	assert.Equal(t, 2, wrong.Remaining)
	assert.ErrorIs(t, err, ErrWrongPIN)

	require.NoError(t, v.Verify(ctx, "desk", "0000", hash), "success clears the count")

	for i := 0; i < 3; i++ {
		err = v.Verify(ctx, "desk", "9999", hash)
		require.ErrorIs(t, err, ErrWrongPIN)
	}
	require.True(t, errors.As(err, &wrong))
	assert.Equal(t, 0, wrong.Remaining)

	err = v.Verify(ctx, "desk", "0000", hash)
	assert.ErrorIs(t, err, ratelimit.ErrLocked, "even the right PIN waits out the lock")

	clock.now = clock.now.Add(time.Minute)
	assert.NoError(t, v.Verify(ctx, "desk", "0000", hash))
}

func TestPINVerifierWithoutPIN(t *testing.T) {
	v := NewPINVerifier(ratelimit.New(ratelimit.NewMemoryStorage(nil)), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, v.Verify(context.Background(), "desk", "1234", ""), ErrNoPIN)
}

func TestPINVerifierParallelGuessesHitLock(t *testing.T) {
	ctx := context.Background()
	hash, err := HashPIN("4242", cheap)
	require.NoError(t, err)

	limiter := ratelimit.New(ratelimit.NewMemoryStorage(nil), ratelimit.WithMaxAttempts(5))
	v := NewPINVerifier(limiter, slog.New(slog.NewTextHandler(io.Discard, nil)))

	const guesses = 100
	errs := make([]error, guesses)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < guesses; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = v.Verify(ctx, "desk", fmt.Sprintf("%04d", i), hash)
		}(i)
	}
	close(start)
	wg.Wait()

	var wrong, locked int
	for i, err := range errs {
		switch {
		case errors.Is(err, ErrWrongPIN):
			wrong++
		case errors.Is(err, ratelimit.ErrLocked):
			locked++
		default:
			t.Fatalf("guess %04d: unexpected result %v", i, err)
		}
	}
	assert.Equal(t, 5, wrong, "only the allowed attempts reach the hash")
	assert.Equal(t, guesses-5, locked)
	assert.ErrorIs(t, v.Verify(ctx, "desk", "4242", hash), ratelimit.ErrLocked)
}

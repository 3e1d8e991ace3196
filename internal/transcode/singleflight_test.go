package transcode

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlightRegistry_FirstClaimerIsOwner(t *testing.T) {
	r := newFlightRegistry()
	slot, owner := r.claim("song-1_low")
	require.True(t, owner)
	require.NotNil(t, slot)
}

func TestFlightRegistry_SecondClaimerIsNotOwner(t *testing.T) {
	r := newFlightRegistry()
	_, owner1 := r.claim("song-1_low")
	slot2, owner2 := r.claim("song-1_low")

	assert.True(t, owner1)
	assert.False(t, owner2)
	assert.NotNil(t, slot2)
}

func TestFlightRegistry_AwaitReceivesResolvedResult(t *testing.T) {
	r := newFlightRegistry()
	slot, owner := r.claim("song-1_low")
	require.True(t, owner)

	_, owner2 := r.claim("song-1_low")
	require.False(t, owner2)

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.resolve("song-1_low", "/cache/low/song-1.m4a", nil)
	}()

	v, err := slot.await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/cache/low/song-1.m4a", v)
}

func TestFlightRegistry_AwaitPropagatesError(t *testing.T) {
	r := newFlightRegistry()
	slot, owner := r.claim("song-1_low")
	require.True(t, owner)

	wantErr := assert.AnError
	r.resolve("song-1_low", nil, wantErr)

	_, err := slot.await(context.Background())
	assert.Equal(t, wantErr, err)
}

func TestFlightRegistry_AwaitRespectsContextCancellation(t *testing.T) {
	r := newFlightRegistry()
	_, owner := r.claim("song-1_low")
	require.True(t, owner)

	slot, _ := r.claim("song-1_low")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := slot.await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFlightRegistry_ResolveFreesTheSlotForFutureClaims(t *testing.T) {
	r := newFlightRegistry()
	_, owner := r.claim("song-1_low")
	require.True(t, owner)

	r.resolve("song-1_low", "done", nil)

	_, owner2 := r.claim("song-1_low")
	assert.True(t, owner2, "a new claim after resolve should start fresh")
}

func TestFlightRegistry_ConcurrentClaimsExactlyOneOwner(t *testing.T) {
	r := newFlightRegistry()
	const n = 50

	var wg sync.WaitGroup
	owners := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, owner := r.claim("song-1_low")
			owners[i] = owner
		}(i)
	}
	wg.Wait()

	count := 0
	for _, o := range owners {
		if o {
			count++
		}
	}
	assert.Equal(t, 1, count, "exactly one goroutine should win ownership")

	r.resolve("song-1_low", "done", nil)
}

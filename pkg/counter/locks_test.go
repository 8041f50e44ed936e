package counter

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestKeyedMutex_SameNameNeverOverlaps(t *testing.T) {
	km := newKeyedMutex(4)
	var holders int32

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			unlock, err := km.Lock(context.Background(), "c1")
			if err != nil {
				return err
			}
			defer unlock()

			if n := atomic.AddInt32(&holders, 1); n != 1 {
				t.Errorf("got %d concurrent holders, want 1", n)
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&holders, -1)
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assert.Equal(t, 0, km.size())
}

func TestKeyedMutex_DifferentNamesDoNotBlock(t *testing.T) {
	// a single shard forces both names through the same registry mutex
	km := newKeyedMutex(1)

	unlock, err := km.Lock(context.Background(), "c1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	unlock2, err := km.Lock(ctx, "c2")
	require.NoError(t, err)
	unlock2()

	assert.Equal(t, 1, km.size())
}

func TestKeyedMutex_ContextDoneWhileWaiting(t *testing.T) {
	km := newKeyedMutex(8)

	unlock, err := km.Lock(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = km.Lock(ctx, "c1")
	assert.Equal(t, context.Canceled, err)

	unlock()
	assert.Equal(t, 0, km.size())

	unlock, err = km.Lock(context.Background(), "c1")
	require.NoError(t, err)
	unlock()
}

package counter

import (
	"context"
	"sync"

	"github.com/segmentio/fasthash/fnv1a"
)

type nameLock struct {
	sem  chan struct{}
	refs int
}

// keyedMutex hands out one lock per counter name. The registry is sharded so
// bookkeeping for unrelated names rarely touches the same mutex, and entries
// are dropped once nobody holds or waits on them.
type keyedMutex struct {
	shardCount uint64
	shards     []map[string]*nameLock
	mutexes    []*sync.Mutex
}

func newKeyedMutex(shards uint64) *keyedMutex {
	km := &keyedMutex{
		shardCount: shards,
		shards:     make([]map[string]*nameLock, shards),
		mutexes:    make([]*sync.Mutex, shards),
	}

	for i := uint64(0); i < shards; i++ {
		km.shards[i] = make(map[string]*nameLock)
		km.mutexes[i] = &sync.Mutex{}
	}

	return km
}

// Lock blocks until the lock for name is held or ctx is done.
// On success the returned func releases the lock.
func (km *keyedMutex) Lock(ctx context.Context, name string) (func(), error) {
	shard := fnv1a.HashString64(name) % km.shardCount
	mux := km.mutexes[shard]

	mux.Lock()
	l, ok := km.shards[shard][name]
	if !ok {
		l = &nameLock{sem: make(chan struct{}, 1)}
		km.shards[shard][name] = l
	}
	l.refs++
	mux.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			km.release(shard, name, l)
		}, nil
	case <-ctx.Done():
		km.release(shard, name, l)
		return nil, ctx.Err()
	}
}

func (km *keyedMutex) release(shard uint64, name string, l *nameLock) {
	mux := km.mutexes[shard]
	mux.Lock()
	l.refs--
	if l.refs == 0 {
		delete(km.shards[shard], name)
	}
	mux.Unlock()
}

// size returns the number of names currently tracked.
func (km *keyedMutex) size() int {
	n := 0
	for i := uint64(0); i < km.shardCount; i++ {
		km.mutexes[i].Lock()
		n += len(km.shards[i])
		km.mutexes[i].Unlock()
	}
	return n
}

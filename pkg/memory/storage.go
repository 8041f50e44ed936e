package memory

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// Storage keeps counter values in process memory. Values never expire.
type Storage struct {
	cache *gocache.Cache
}

func NewStorage() *Storage {
	return &Storage{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	v, ok := s.cache.Get(key)
	if !ok {
		return "", false, nil
	}

	value, ok := v.(string)
	if !ok {
		return "", false, errors.Errorf("memory storage holds %T for key %q", v, key)
	}

	return value, true, nil
}

func (s *Storage) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.cache.Set(key, value, gocache.NoExpiration)
	return nil
}

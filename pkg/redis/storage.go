package redis

import (
	"context"
	"strings"

	"github.com/go-redis/redis/v7"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/countd/pkg/counter"
)

type RemoteStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRemoteStorage(client *redis.Client, logger *logrus.Logger) *RemoteStorage {
	return &RemoteStorage{
		client: client,
		logger: logger,
	}
}

func (s RemoteStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.WithContext(ctx).Get(key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis storage get failure")
	}

	return v, true, nil
}

func (s RemoteStorage) Put(ctx context.Context, key string, value string) error {
	err := s.client.WithContext(ctx).Set(key, value, 0).Err()
	if err != nil {
		return errors.Wrap(err, "redis storage set failure")
	}

	return nil
}

// Increment uses INCRBY, which redis applies atomically.
func (s RemoteStorage) Increment(ctx context.Context, key string) (int64, error) {
	v, err := s.client.WithContext(ctx).IncrBy(key, 1).Result()
	if err != nil {
		if isOverflowErr(err) {
			return 0, counter.ErrOverflow
		}
		if isNotIntegerErr(err) {
			s.logger.WithField("key", key).Warn("redis refused increment on non integer value")
			return 0, errors.Wrap(counter.ErrCorruptValue, err.Error())
		}
		return 0, errors.Wrap(err, "redis storage incrby failure")
	}

	return v, nil
}

// redis answers "ERR value is not an integer or out of range" for both cases.
func isNotIntegerErr(err error) bool {
	return strings.Contains(err.Error(), "not an integer")
}

func isOverflowErr(err error) bool {
	return strings.Contains(err.Error(), "would overflow")
}

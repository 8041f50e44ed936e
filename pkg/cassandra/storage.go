package cassandra

import (
	"context"
	"math"
	"strconv"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/samueltorres/countd/pkg/counter"
)

// CreateTableCQL creates the table the storage expects in its keyspace.
const CreateTableCQL = `CREATE TABLE IF NOT EXISTS counters (key text PRIMARY KEY, value text)`

// maxCASAttempts bounds the compare-and-set loop of Increment under contention.
const maxCASAttempts = 16

// querier is the subset of a cql session the storage runs its statements through.
type querier interface {
	QueryValue(ctx context.Context, consistency gocql.Consistency, stmt string, values ...interface{}) (string, error)
	Exec(ctx context.Context, consistency gocql.Consistency, stmt string, values ...interface{}) error
	ExecCAS(ctx context.Context, serial gocql.SerialConsistency, stmt string, values ...interface{}) (bool, error)
}

type sessionQuerier struct {
	session *gocql.Session
}

func (q sessionQuerier) QueryValue(ctx context.Context, consistency gocql.Consistency, stmt string, values ...interface{}) (string, error) {
	var value string
	err := q.session.Query(stmt, values...).WithContext(ctx).Consistency(consistency).Scan(&value)
	return value, err
}

func (q sessionQuerier) Exec(ctx context.Context, consistency gocql.Consistency, stmt string, values ...interface{}) error {
	return q.session.Query(stmt, values...).WithContext(ctx).Consistency(consistency).Exec()
}

func (q sessionQuerier) ExecCAS(ctx context.Context, serial gocql.SerialConsistency, stmt string, values ...interface{}) (bool, error) {
	return q.session.Query(stmt, values...).WithContext(ctx).SerialConsistency(serial).MapScanCAS(map[string]interface{}{})
}

const (
	selectValueCQL = `SELECT value FROM counters WHERE key = ? LIMIT 1`
	insertValueCQL = `INSERT INTO counters (key, value) VALUES (?, ?)`
	insertNewCQL   = `INSERT INTO counters (key, value) VALUES (?, ?) IF NOT EXISTS`
	updateIfCQL    = `UPDATE counters SET value = ? WHERE key = ? IF value = ?`
)

type RemoteStorage struct {
	querier querier
	logger  *logrus.Logger
}

func NewRemoteStorage(logger *logrus.Logger, session *gocql.Session) *RemoteStorage {
	return newRemoteStorage(logger, sessionQuerier{session: session})
}

func newRemoteStorage(logger *logrus.Logger, q querier) *RemoteStorage {
	return &RemoteStorage{
		querier: q,
		logger:  logger,
	}
}

func (s RemoteStorage) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.querier.QueryValue(ctx, gocql.LocalQuorum, selectValueCQL, key)
	if err == gocql.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "cassandra storage select failure")
	}

	return value, true, nil
}

func (s RemoteStorage) Put(ctx context.Context, key string, value string) error {
	err := s.querier.Exec(ctx, gocql.LocalQuorum, insertValueCQL, key, value)
	if err != nil {
		return errors.Wrap(err, "cassandra storage insert failure")
	}

	return nil
}

// Increment runs a lightweight-transaction compare-and-set loop: the new value
// is only written if the row still holds the value that was read.
func (s RemoteStorage) Increment(ctx context.Context, key string) (int64, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		raw, ok, err := s.serialRead(ctx, key)
		if err != nil {
			return 0, err
		}

		var current int64
		if ok {
			current, err = strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return 0, errors.Wrap(counter.ErrCorruptValue, err.Error())
			}
		}
		if current == math.MaxInt64 {
			return 0, counter.ErrOverflow
		}
		next := strconv.FormatInt(current+1, 10)

		var applied bool
		if ok {
			applied, err = s.cas(ctx, updateIfCQL, next, key, raw)
		} else {
			applied, err = s.cas(ctx, insertNewCQL, key, next)
		}
		if err != nil {
			return 0, err
		}
		if applied {
			return current + 1, nil
		}

		s.logger.WithFields(logrus.Fields{"key": key, "attempt": attempt}).Debug("cassandra increment lost compare-and-set, retrying")
	}

	return 0, errors.Errorf("cassandra increment of %q did not apply after %d attempts", key, maxCASAttempts)
}

func (s RemoteStorage) serialRead(ctx context.Context, key string) (string, bool, error) {
	value, err := s.querier.QueryValue(ctx, gocql.Consistency(gocql.LocalSerial), selectValueCQL, key)
	if err == gocql.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "cassandra storage serial select failure")
	}

	return value, true, nil
}

func (s RemoteStorage) cas(ctx context.Context, stmt string, values ...interface{}) (bool, error) {
	applied, err := s.querier.ExecCAS(ctx, gocql.LocalSerial, stmt, values...)
	if err != nil {
		return false, errors.Wrap(err, "cassandra storage compare-and-set failure")
	}

	return applied, nil
}

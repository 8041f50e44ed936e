package counter

import (
	"context"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const (
	opGet       = "get"
	opIncrement = "increment"
	opSet       = "set"
)

type counterMetrics struct {
	operationsTotal  *prometheus.CounterVec
	atomicIncrements prometheus.Counter
}

func newCounterMetrics(r prometheus.Registerer) *counterMetrics {
	var m counterMetrics

	m.operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counter_operations_total",
		Help: "Total counter operations by operation and result",
	}, []string{"op", "result"})

	m.atomicIncrements = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counter_atomic_increments_total",
		Help: "Total increments delegated to the storage atomic increment",
	})

	r.MustRegister(m.operationsTotal, m.atomicIncrements)
	return &m
}

func (m *counterMetrics) observe(op string, err error) {
	m.operationsTotal.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return KindOf(err).String()
}

// Options tune how the service talks to its storage.
type Options struct {
	// KeyPrefix is prepended to counter names to form storage keys.
	KeyPrefix string
	// AtomicIncrement delegates increments to the storage when it implements Incrementer.
	AtomicIncrement bool
	// Legacy disables per-name serialization of increments. Concurrent
	// increments on the same name may then be lost.
	Legacy bool
	// LockShards is the number of shards of the per-name lock registry.
	LockShards uint64
}

// DefaultOptions returns the options used by the server unless configured otherwise.
func DefaultOptions() Options {
	return Options{
		AtomicIncrement: true,
		LockShards:      64,
	}
}

// CounterService reads, increments and sets named counters stored in a Storage
type CounterService struct {
	storage     Storage
	incrementer Incrementer
	locks       *keyedMutex
	opts        Options

	logger  *logrus.Logger
	metrics *counterMetrics
}

// NewCounterService creates a new counter service
func NewCounterService(
	storage Storage,
	logger *logrus.Logger,
	registerer prometheus.Registerer,
	opts Options) *CounterService {

	if opts.LockShards == 0 {
		opts.LockShards = DefaultOptions().LockShards
	}

	cs := &CounterService{
		storage: storage,
		locks:   newKeyedMutex(opts.LockShards),
		opts:    opts,
		logger:  logger,
		metrics: newCounterMetrics(registerer),
	}

	if inc, ok := storage.(Incrementer); ok && opts.AtomicIncrement && !opts.Legacy {
		cs.incrementer = inc
	}

	return cs
}

func (cs *CounterService) key(name string) string {
	return cs.opts.KeyPrefix + name
}

// Get returns the current value of a counter, 0 when it was never written.
func (cs *CounterService) Get(ctx context.Context, name string) (value int64, err error) {
	defer func() { cs.metrics.observe(opGet, err) }()

	if name == "" {
		return 0, ErrNameRequired
	}

	return cs.read(ctx, name)
}

// Increment adds one to a counter and returns the new value. Increments on
// the same name never interleave their read and write, either because the
// storage increments atomically or because they are serialized per name.
//
// If ctx is cancelled after the write was issued the outcome is unknown to the
// caller; there is no rollback.
func (cs *CounterService) Increment(ctx context.Context, name string) (value int64, err error) {
	defer func() { cs.metrics.observe(opIncrement, err) }()

	if name == "" {
		return 0, ErrNameRequired
	}

	if cs.incrementer != nil {
		cs.metrics.atomicIncrements.Inc()
		return cs.incrementOnStorage(ctx, name)
	}

	if !cs.opts.Legacy {
		unlock, err := cs.locks.Lock(ctx, name)
		if err != nil {
			return 0, unavailable("waiting for counter lock", err)
		}
		defer unlock()
	}

	current, err := cs.read(ctx, name)
	if err != nil {
		return 0, err
	}

	if current == math.MaxInt64 {
		return 0, ErrOverflow
	}
	value = current + 1

	if err := cs.write(ctx, name, value); err != nil {
		return 0, err
	}

	return value, nil
}

// Set overwrites a counter. Concurrent sets and increments race and the last
// write to reach the storage wins.
func (cs *CounterService) Set(ctx context.Context, name string, value int64) (_ int64, err error) {
	defer func() { cs.metrics.observe(opSet, err) }()

	if name == "" {
		return 0, ErrNameRequired
	}

	if err := cs.write(ctx, name, value); err != nil {
		return 0, err
	}

	return value, nil
}

func (cs *CounterService) incrementOnStorage(ctx context.Context, name string) (int64, error) {
	value, err := cs.incrementer.Increment(ctx, cs.key(name))
	if err != nil {
		if KindOf(err) != KindUnknown {
			return 0, err
		}
		if errors.Is(err, ErrCorruptValue) {
			return 0, corrupted(name, err)
		}
		return 0, unavailable("storage increment", err)
	}

	return value, nil
}

func (cs *CounterService) read(ctx context.Context, name string) (int64, error) {
	raw, ok, err := cs.storage.Get(ctx, cs.key(name))
	if err != nil {
		return 0, unavailable("storage get", err)
	}
	if !ok {
		return 0, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		cs.logger.WithField("counter", name).Warn("stored counter value is not an integer")
		return 0, corrupted(name, err)
	}

	return value, nil
}

func (cs *CounterService) write(ctx context.Context, name string, value int64) error {
	err := cs.storage.Put(ctx, cs.key(name), strconv.FormatInt(value, 10))
	if err != nil {
		return unavailable("storage put", err)
	}

	return nil
}

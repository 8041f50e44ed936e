package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	rediscli "github.com/go-redis/redis/v7"
	"github.com/gocql/gocql"
	"github.com/oklog/run"
	"github.com/peterbourgon/ff"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"github.com/samueltorres/countd/pkg/cassandra"
	"github.com/samueltorres/countd/pkg/configs"
	"github.com/samueltorres/countd/pkg/counter"
	"github.com/samueltorres/countd/pkg/memory"
	"github.com/samueltorres/countd/pkg/redis"
	"github.com/samueltorres/countd/pkg/transport/http"
	"github.com/sirupsen/logrus"
)

func main() {
	config := parseConfig()
	logger, err := createLogger(config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// metrics
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(
		version.NewCollector("countd"),
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	storage, closeStorage, err := createCounterStorage(config, logger)
	if err != nil {
		logger.Fatalf("could not create counter storage: %v", err)
	}
	defer closeStorage()

	opts := counter.DefaultOptions()
	opts.KeyPrefix = config.Counter.KeyPrefix
	opts.AtomicIncrement = config.Counter.AtomicIncrement
	opts.Legacy = config.Counter.LegacyIncrement
	if opts.Legacy {
		logger.Warn("legacy increments enabled, concurrent increments on the same counter may be lost")
	}

	counterService := counter.NewCounterService(storage, logger, metrics, opts)

	var g run.Group
	{
		counterHTTPServer := http.New(
			counterService,
			logger,
			metrics,
			http.WithListen(config.HttpAddr),
			http.WithShutdownTimeout(config.ShutdownTimeout))

		g.Add(func() error {
			return counterHTTPServer.Start()
		}, func(err error) {
			counterHTTPServer.Stop(err)
		})
	}
	{
		debugServer := http.NewDebugServer(metrics, logger, config.DebugAddr)

		g.Add(func() error {
			return debugServer.Start()
		}, func(err error) {
			debugServer.Stop(err)
		})
	}
	{
		cancel := make(chan struct{})
		g.Add(func() error {
			c := make(chan os.Signal, 1)
			signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-c:
				return fmt.Errorf("received signal %s", sig)
			case <-cancel:
				return nil
			}
		}, func(error) {
			close(cancel)
		})
	}

	logger.Info("exit ", g.Run())
}

func parseConfig() configs.Config {
	fs := flag.NewFlagSet("countd", flag.ExitOnError)
	var (
		httpAddress       = fs.String("http-addr", ":8082", "http address")
		debugAddress      = fs.String("debug-addr", ":8083", "debug address for metrics and healthcheck")
		datastore         = fs.String("datastore", "memory", "datastore type (memory/redis/cassandra)")
		cassandraHost     = fs.String("cassandra-host", "", "cassandra hosts, comma separated")
		cassandraKeyspace = fs.String("cassandra-keyspace", "", "cassandra keyspace")
		redisAddress      = fs.String("redis-address", "", "redis address")
		redisDatabase     = fs.Int("redis-database", 0, "redis database")
		redisPassword     = fs.String("redis-password", "", "redis password")
		keyPrefix         = fs.String("key-prefix", "", "prefix prepended to counter names to form storage keys")
		atomicIncrement   = fs.Bool("atomic-increment", true, "use the datastore atomic increment when available")
		legacyIncrement   = fs.Bool("legacy-increment", false, "do not serialize increments (racy, for compatibility only)")
		shutdownTimeout   = fs.Duration("shutdown-timeout", 5*time.Second, "time to wait for in-flight requests on shutdown")
		logLevel          = fs.String("log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
		logFormat         = fs.String("log-format", "text", "log format (text/json)")
	)
	ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("COUNTD"))

	var config configs.Config
	{
		config.HttpAddr = *httpAddress
		config.DebugAddr = *debugAddress
		config.Datastore = *datastore
		config.Cassandra.Hosts = *cassandraHost
		config.Cassandra.Keyspace = *cassandraKeyspace
		config.Redis.Address = *redisAddress
		config.Redis.Database = *redisDatabase
		config.Redis.Password = *redisPassword
		config.Counter.KeyPrefix = *keyPrefix
		config.Counter.AtomicIncrement = *atomicIncrement
		config.Counter.LegacyIncrement = *legacyIncrement
		config.ShutdownTimeout = *shutdownTimeout
		config.LogLevel = *logLevel
		config.LogFormat = *logFormat
	}

	return config
}

// createLogger builds the process logger. An unknown level falls back to info
// and is reported once the logger exists.
func createLogger(config configs.Config) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Out = os.Stderr

	switch config.LogFormat {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("invalid log format %q", config.LogFormat)
	}

	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
		logger.WithError(err).Warnf("falling back to log level %v", level)
	}
	logger.SetLevel(level)

	return logger, nil
}

func createCounterStorage(config configs.Config, logger *logrus.Logger) (counter.Storage, func(), error) {
	switch config.Datastore {
	case "memory":
		return memory.NewStorage(), func() {}, nil

	case "redis":
		redisClient := rediscli.NewClient(&rediscli.Options{
			Addr:     config.Redis.Address,
			Password: config.Redis.Password,
			DB:       config.Redis.Database,
		})

		_, err := redisClient.Ping().Result()
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis : %w", err)
		}

		return redis.NewRemoteStorage(redisClient, logger), func() { redisClient.Close() }, nil

	case "cassandra":
		cluster := gocql.NewCluster(strings.Split(config.Cassandra.Hosts, ",")...)
		cluster.Keyspace = config.Cassandra.Keyspace
		cluster.Consistency = gocql.LocalQuorum
		session, err := cluster.CreateSession()

		if err != nil {
			return nil, nil, fmt.Errorf("could not create cassandra session : %w", err)
		}

		if err := session.Query(cassandra.CreateTableCQL).Exec(); err != nil {
			session.Close()
			return nil, nil, fmt.Errorf("could not create cassandra counters table : %w", err)
		}

		return cassandra.NewRemoteStorage(logger, session), session.Close, nil
	default:
		return nil, nil, fmt.Errorf("invalid datastore %s", config.Datastore)
	}
}

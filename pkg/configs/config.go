package configs

import "time"

type Config struct {
	HttpAddr        string
	DebugAddr       string
	Datastore       string
	Redis           RedisConfig
	Cassandra       CassandraConfig
	Counter         CounterConfig
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

type RedisConfig struct {
	Address  string
	Database int
	Password string
}

type CassandraConfig struct {
	Hosts    string
	Keyspace string
}

type CounterConfig struct {
	KeyPrefix       string
	AtomicIncrement bool
	LegacyIncrement bool
}

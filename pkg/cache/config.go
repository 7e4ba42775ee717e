package cache

import "time"

// RedisConfig holds connection settings for the Redis-backed store. Pool
// sizing keeps its defaults; the KV load here is a handful of keys.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
}

// RedisOption configures the Redis store.
type RedisOption func(*RedisConfig)

// WithRedisHost sets the server host.
func WithRedisHost(host string) RedisOption {
	return func(c *RedisConfig) {
		c.Host = host
	}
}

// WithRedisPort sets the server port.
func WithRedisPort(port int) RedisOption {
	return func(c *RedisConfig) {
		c.Port = port
	}
}

// WithRedisPassword sets the auth password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
	}
}

// WithRedisDB selects the database number.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) {
		c.DB = db
	}
}

// WithRedisPrefix sets the key namespace prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// MemoryConfig holds settings for the in-process store.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// MemoryOption configures the in-process store.
type MemoryOption func(*MemoryConfig)

// WithMemoryMaxSize caps the entry count before LRU eviction.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) {
		c.MaxSize = size
	}
}

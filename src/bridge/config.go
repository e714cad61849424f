package bridge

// RedisConfig holds connection settings for the Redis pub/sub bridge.
type RedisConfig struct {
	Addr     string // default "localhost:6379"
	Password string
	DB       int
	Prefix   string // channel prefix, default "chat:ws:"
}

// DefaultRedisConfig returns a RedisConfig with local defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "chat:ws:",
	}
}

// Channel is the pub/sub channel every instance publishes chat frames on.
func (c *RedisConfig) Channel() string {
	return c.Prefix + "broadcast"
}

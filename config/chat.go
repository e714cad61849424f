// Package config loads the chat server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/orchestra-mcp/chat/src/bridge"
	"github.com/orchestra-mcp/chat/src/hub"
	"github.com/orchestra-mcp/chat/src/service"
	"github.com/orchestra-mcp/chat/src/store"
)

// ChatConfig holds the chat server configuration.
type ChatConfig struct {
	Host string `env:"HOST,default=0.0.0.0" validate:"required"`
	Port int    `env:"PORT,default=8080" validate:"min=1,max=65535"`

	JWTSecret string `env:"JWT_SECRET,required=true" validate:"required"`
	JWTIssuer string `env:"JWT_ISSUER,default=task-chat" validate:"required"`

	ChatPath       string        `env:"CHAT_PATH,default=/ws/chat" validate:"required,startswith=/"`
	HistoryLimit   int           `env:"CHAT_HISTORY_LIMIT,default=50" validate:"min=1,max=1000"`
	SendBuffer     int           `env:"CHAT_SEND_BUFFER,default=256" validate:"min=1"`
	MaxMessageSize int64         `env:"CHAT_MAX_MESSAGE_SIZE,default=65536" validate:"min=1"`
	PingInterval   time.Duration `env:"CHAT_PING_INTERVAL,default=15s" validate:"gt=0"`
	PongTimeout    time.Duration `env:"CHAT_PONG_TIMEOUT,default=30s" validate:"gtfield=PingInterval"`
	WriteTimeout   time.Duration `env:"CHAT_WRITE_TIMEOUT,default=10s" validate:"gt=0"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`

	StoreDriver string `env:"STORE_DRIVER,default=sqlite" validate:"oneof=sqlite badger"`
	SQLitePath  string `env:"SQLITE_PATH,default=data/chat.db" validate:"required_if=StoreDriver sqlite"`
	BadgerPath  string `env:"BADGER_PATH,default=data/badger"`

	RedisEnabled  bool   `env:"REDIS_ENABLED,default=false"`
	RedisAddr     string `env:"REDIS_ADDR,default=localhost:6379" validate:"required_if=RedisEnabled true"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0" validate:"min=0"`
	RedisPrefix   string `env:"REDIS_WS_PREFIX,default=chat:ws:"`

	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error"`
	LogFormat string `env:"LOG_FORMAT,default=json" validate:"oneof=json console"`
}

var validate = validator.New()

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*ChatConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnviron(os.Environ())
}

// FromEnviron builds the configuration from KEY=VALUE pairs.
func FromEnviron(environ []string) (*ChatConfig, error) {
	es, err := env.EnvironToEnvSet(environ)
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	var cfg ChatConfig
	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Addr is the listen address.
func (c *ChatConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Service returns the session options.
func (c *ChatConfig) Service() service.Options {
	return service.Options{
		HistoryLimit:   c.HistoryLimit,
		MaxMessageSize: c.MaxMessageSize,
		PongTimeout:    c.PongTimeout,
		Client: hub.ClientOptions{
			SendBuffer:   c.SendBuffer,
			WriteTimeout: c.WriteTimeout,
			PingInterval: c.PingInterval,
		},
	}
}

// Store returns the message store options.
func (c *ChatConfig) Store() store.Options {
	return store.Options{
		Driver:     c.StoreDriver,
		SQLitePath: c.SQLitePath,
		BadgerPath: c.BadgerPath,
	}
}

// Redis returns the bridge settings.
func (c *ChatConfig) Redis() *bridge.RedisConfig {
	return &bridge.RedisConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisPrefix,
	}
}

// Package store persists chat messages.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
)

// ErrUnknownDriver is returned by Open for an unsupported driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// MessageStore is an append-only log of chat messages.
type MessageStore interface {
	// Append persists text under author and returns the stored row.
	Append(ctx context.Context, author types.Identity, text string) (types.StoredMessage, error)
	// Recent returns up to limit of the newest messages, oldest first.
	Recent(ctx context.Context, limit int) ([]types.StoredMessage, error)
	Close() error
}

// Options selects and configures a store implementation.
type Options struct {
	Driver     string
	SQLitePath string
	BadgerPath string
}

// Open creates the store named by opts.Driver.
func Open(opts Options, logger zerolog.Logger) (MessageStore, error) {
	switch opts.Driver {
	case "sqlite":
		return OpenSQLite(opts.SQLitePath, logger)
	case "badger":
		return OpenBadger(opts.BadgerPath, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

// now is replaced in tests.
var now = time.Now

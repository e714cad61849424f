package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
)

const (
	messagePrefix = "msg:"
	sequenceKey   = "seq:msg"
)

// BadgerStore keeps messages in an embedded Badger database.
//
// Keys are "msg:{id padded to 19 digits}" so that lexicographical order is
// append order, and Recent is a reverse prefix scan.
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger zerolog.Logger
}

// OpenBadger opens the database in dir. An empty dir runs in memory.
func OpenBadger(dir string, logger zerolog.Logger) (*BadgerStore, error) {
	logger = logger.With().Str("component", "badger-store").Logger()

	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("allocating message sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq, logger: logger}, nil
}

// Append stores a message under the next sequence id.
func (s *BadgerStore) Append(ctx context.Context, author types.Identity, text string) (types.StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return types.StoredMessage{}, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("next message id: %w", err)
	}

	msg := types.StoredMessage{
		ID:        int64(n) + 1,
		UserID:    author.UserID,
		Username:  author.Username,
		Message:   text,
		Timestamp: types.FormatTimestamp(now()),
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return types.StoredMessage{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), value)
	})
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("writing message: %w", err)
	}
	return msg, nil
}

// Recent returns the newest limit messages, oldest first.
func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]types.StoredMessage, error) {
	if limit <= 0 {
		return []types.StoredMessage{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs := make([]types.StoredMessage, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// '~' sorts after every digit, so the seek lands on the newest key.
		for it.Seek([]byte(messagePrefix + "~")); it.ValidForPrefix(prefix) && len(msgs) < limit; it.Next() {
			var m types.StoredMessage
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			})
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading messages: %w", err)
	}

	// Collected newest first.
	slices.Reverse(msgs)
	return msgs, nil
}

// Close releases the sequence and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn().Err(err).Msg("releasing message sequence")
	}
	return s.db.Close()
}

func messageKey(id int64) []byte {
	return []byte(fmt.Sprintf("%s%019d", messagePrefix, id))
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Trace().Msgf(format, args...)
}

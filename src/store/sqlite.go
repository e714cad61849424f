package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore keeps messages in a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations.
func OpenSQLite(path string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// WAL lets history reads proceed while a message is being appended.
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	s := &SQLiteStore{
		db:     db,
		logger: logger.With().Str("component", "sqlite-store").Logger(),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}


// Append inserts a message.
func (s *SQLiteStore) Append(ctx context.Context, author types.Identity, text string) (types.StoredMessage, error) {
	createdAt := types.FormatTimestamp(now())

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (user_id, username, message, created_at)
		VALUES (?, ?, ?, ?)
	`, author.UserID, author.Username, text, createdAt)
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.StoredMessage{}, fmt.Errorf("reading message id: %w", err)
	}

	return types.StoredMessage{
		ID:        id,
		UserID:    author.UserID,
		Username:  author.Username,
		Message:   text,
		Timestamp: createdAt,
	}, nil
}

// Recent returns the newest limit messages, oldest first. Rows are ordered
// by id so messages appended within the same second keep their order.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]types.StoredMessage, error) {
	if limit <= 0 {
		return []types.StoredMessage{}, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, username, message, created_at
		FROM chat_messages
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]types.StoredMessage, 0, limit)
	for rows.Next() {
		var m types.StoredMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Message, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	slices.Reverse(msgs)
	return msgs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type migration struct {
	Name    string
	Content string
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS _migrations (
			name       TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	applied, err := s.appliedMigrations()
	if err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}

	migrations, err := migrationFiles()
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		s.logger.Info().Str("migration", m.Name).Msg("applying migration")
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
	}
	return nil
}

func (s *SQLiteStore) appliedMigrations() (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT name FROM _migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func migrationFiles() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migration{Name: entry.Name(), Content: string(content)})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})
	return migrations, nil
}

func (s *SQLiteStore) applyMigration(m migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if _, err := tx.Exec(m.Content); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if _, err := tx.Exec(`INSERT INTO _migrations (name) VALUES (?)`, m.Name); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

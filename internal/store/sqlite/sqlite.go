package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/NicolasFrouin/chat/internal/store"
	"github.com/NicolasFrouin/chat/internal/utils"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps
	// :memory: databases alive across queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `id, name, color, image, created_at`

// CreateUser creates a new user from the given profile.
func (s *SQLiteStore) CreateUser(ctx context.Context, profile store.Profile) (*store.User, error) {
	query := `
		INSERT INTO users (id, name, color, image, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	id := utils.NewID()
	if _, err := s.db.ExecContext(ctx, query, id, profile.Name, profile.Color, profile.Image, s.now()); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return s.queryUser(ctx, query, id)
}

// GetUserByName retrieves the earliest created user with the given name.
func (s *SQLiteStore) GetUserByName(ctx context.Context, name string) (*store.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE name = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1
	`
	return s.queryUser(ctx, query, name)
}

// ListUsers lists all users ordered by creation time.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Color, &user.Image, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

// UpdateUserColor changes the color of an existing user.
func (s *SQLiteStore) UpdateUserColor(ctx context.Context, id, color string) (*store.User, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET color = ? WHERE id = ?`, color, id)
	if err != nil {
		return nil, fmt.Errorf("update user color: %w", err)
	}
	if err := requireAffected(result, "user"); err != nil {
		return nil, err
	}

	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) queryUser(ctx context.Context, query string, arg any) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Color,
		&user.Image,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// ==== MessageStore implementation ====

const messageSelect = `
	SELECT m.id, m.text, m.author_id, m.modified, m.created_at, m.updated_at,
	       u.id, u.name, u.color, u.image, u.created_at
	FROM messages m
	JOIN users u ON u.id = m.author_id
`

// CreateMessage persists a message written by authorID.
func (s *SQLiteStore) CreateMessage(ctx context.Context, text, authorID string) (*store.Message, error) {
	if _, err := s.GetUserByID(ctx, authorID); err != nil {
		return nil, fmt.Errorf("author: %w", err)
	}

	query := `
		INSERT INTO messages (id, text, author_id, modified, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`
	id := utils.NewID()
	now := s.now()
	if _, err := s.db.ExecContext(ctx, query, id, text, authorID, now, now); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return s.GetMessageByID(ctx, id)
}

// ListMessages returns all messages, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelect+` ORDER BY m.created_at ASC, m.rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// GetMessageByID retrieves a message by ID.
func (s *SQLiteStore) GetMessageByID(ctx context.Context, id string) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// UpdateMessageText replaces the text of a message and marks it modified.
func (s *SQLiteStore) UpdateMessageText(ctx context.Context, id, text string) (*store.Message, error) {
	query := `UPDATE messages SET text = ?, modified = 1, updated_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, text, s.now(), id)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if err := requireAffected(result, "message"); err != nil {
		return nil, err
	}

	return s.GetMessageByID(ctx, id)
}

// DeleteMessage removes a message.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return requireAffected(result, "message")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	err := row.Scan(
		&msg.ID,
		&msg.Text,
		&msg.AuthorID,
		&msg.Modified,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.Author.ID,
		&msg.Author.Name,
		&msg.Author.Color,
		&msg.Author.Image,
		&msg.Author.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func requireAffected(result sql.Result, entity string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", entity, store.ErrNotFound)
	}
	return nil
}

var _ store.Store = (*SQLiteStore)(nil)

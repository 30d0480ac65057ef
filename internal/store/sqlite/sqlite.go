package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/roomsync/internal/store"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
	// health has its own connection so Ping never queues behind store traffic.
	health *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" databases shared.
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

	health, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite health connection: %w", err)
	}
	health.SetMaxOpenConns(1)
	health.SetMaxIdleConns(1)

	return &SQLiteStore{db: db, health: health}, nil
}

// ApplySchema creates all tables and indexes if they do not exist yet.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connections.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.db.Close(), s.health.Close())
}

// Ping reports whether the database is reachable. It reads the schema version
// over the health connection, so a long query on the main pool does not delay it.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	var version int64
	if err := s.health.QueryRowContext(ctx, "PRAGMA schema_version").Scan(&version); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, password_hash, is_guest)
		VALUES (?, ?, 0)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// CreateGuestUser creates a temporary guest user with session ID.
func (s *SQLiteStore) CreateGuestUser(ctx context.Context, sessionID string) (*store.User, error) {
	if len(sessionID) < 8 {
		return nil, fmt.Errorf("guest session id too short")
	}
	query := `
		INSERT INTO users (username, password_hash, is_guest, session_id)
		VALUES (?, '', 1, ?)
	`
	guestUsername := "guest_" + sessionID[:8]

	result, err := s.db.ExecContext(ctx, query, guestUsername, sessionID)
	if err != nil {
		return nil, fmt.Errorf("insert guest user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE id = ?
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// GetUserByUsername retrieves a registered (non-guest) user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, password_hash, is_guest, COALESCE(session_id, ''), created_at
		FROM users
		WHERE username = ? AND is_guest = 0
	`
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*store.User, error) {
	var user store.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.IsGuest,
		&user.SessionID,
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

// ==== RoomStore implementation ====

// CreateRoom creates a new room record.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, ownerID *int64) (*store.Room, error) {
	query := `
		INSERT INTO rooms (name, owner_id)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, name, ownerID); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("room %q: %w", name, store.ErrConflict)
		}
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return s.GetRoomByName(ctx, name)
}

// GetRoomByName retrieves a room by name.
func (s *SQLiteStore) GetRoomByName(ctx context.Context, name string) (*store.Room, error) {
	query := `
		SELECT id, name, owner_id, created_at
		FROM rooms
		WHERE name = ?
	`
	var room store.Room
	var ownerID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, name).Scan(&room.ID, &room.Name, &ownerID, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %q: %w", name, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	if ownerID.Valid {
		room.OwnerID = &ownerID.Int64
	}
	return &room, nil
}

// ListRooms lists all room records, newest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]*store.Room, error) {
	query := `
		SELECT id, name, owner_id, created_at
		FROM rooms
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*store.Room
	for rows.Next() {
		var room store.Room
		var ownerID sql.NullInt64
		if err := rows.Scan(&room.ID, &room.Name, &ownerID, &room.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if ownerID.Valid {
			room.OwnerID = &ownerID.Int64
		}
		rooms = append(rooms, &room)
	}

	return rooms, rows.Err()
}

// ==== MessageStore implementation ====

// ListMessages returns up to limit messages of a room in ascending creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, room string, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT id, room, author, body, pinned, created_at
			FROM messages
			WHERE room = ? AND id < ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []any{room, *beforeID, limit}
	} else {
		query = `
			SELECT id, room, author, body, pinned, created_at
			FROM messages
			WHERE room = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		`
		args = []any{room, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.Room, &msg.Author, &msg.Body, &msg.Pinned, &msg.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	// Release the single pooled connection before loading reactions.
	rows.Close()

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}

	if err := s.attachReactions(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// CreateMessage persists a message and returns the stored copy.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO messages (room, author, body, pinned, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, msg.Room, msg.Author, msg.Body, msg.Pinned, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return &store.Message{
		ID:        id,
		Room:      msg.Room,
		Author:    msg.Author,
		Body:      msg.Body,
		Pinned:    msg.Pinned,
		Reactions: map[string]int{},
		CreatedAt: createdAt,
	}, nil
}

// GetMessage retrieves a message with its reaction tally.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, room, author, body, pinned, created_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(&msg.ID, &msg.Room, &msg.Author, &msg.Body, &msg.Pinned, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	if err := s.attachReactions(ctx, []*store.Message{&msg}); err != nil {
		return nil, err
	}
	return &msg, nil
}

// IncrementReaction adds one to the label's count in a single upsert, so concurrent
// reactions on the same message never lose an increment.
func (s *SQLiteStore) IncrementReaction(ctx context.Context, id int64, label string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	upsert := `
		INSERT INTO message_reactions (message_id, label, count)
		VALUES (?, ?, 1)
		ON CONFLICT (message_id, label) DO UPDATE SET count = count + 1
	`
	if _, err := tx.ExecContext(ctx, upsert, id, label); err != nil {
		return nil, fmt.Errorf("increment reaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reaction: %w", err)
	}

	return s.GetMessage(ctx, id)
}

// SetPinned updates the pinned flag and returns the re-read message.
func (s *SQLiteStore) SetPinned(ctx context.Context, id int64, pinned bool) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET pinned = ? WHERE id = ?`, pinned, id)
	if err != nil {
		return nil, fmt.Errorf("update pinned: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}

	return s.GetMessage(ctx, id)
}

// DeleteMessage removes a message and its reactions.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete reactions: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

// attachReactions loads the reaction tallies for the given messages in one query.
func (s *SQLiteStore) attachReactions(ctx context.Context, messages []*store.Message) error {
	if len(messages) == 0 {
		return nil
	}

	byID := make(map[int64]*store.Message, len(messages))
	args := make([]any, 0, len(messages))
	for _, msg := range messages {
		msg.Reactions = map[string]int{}
		byID[msg.ID] = msg
		args = append(args, msg.ID)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messages)), ",")
	query := `
		SELECT message_id, label, count
		FROM message_reactions
		WHERE count > 0 AND message_id IN (` + placeholders + `)
	`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID int64
			label     string
			count     int
		)
		if err := rows.Scan(&messageID, &label, &count); err != nil {
			return fmt.Errorf("scan reaction: %w", err)
		}
		if msg, ok := byID[messageID]; ok {
			msg.Reactions[label] = count
		}
	}

	return rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"direct-chat/internal/models"
	"direct-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		username      TEXT UNIQUE NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		last_seen     DATETIME,
		created_at    DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT UNIQUE NOT NULL,
		sender_id    TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		type         TEXT NOT NULL DEFAULT 'text',
		content      TEXT NOT NULL,
		media_url    TEXT NOT NULL DEFAULT '',
		read         INTEGER NOT NULL DEFAULT 0,
		read_at      DATETIME,
		delivered_at DATETIME,
		reply_to     TEXT NOT NULL DEFAULT '',
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS message_deletions (
		message_id TEXT NOT NULL REFERENCES messages(id),
		user_id    TEXT NOT NULL,
		PRIMARY KEY (message_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, recipient_id, created_at)`,
}

const sqliteMessageSelect = `
	SELECT m.id, m.sender_id, m.recipient_id, m.type, m.content, m.media_url, m.read, m.read_at,
		m.delivered_at, m.reply_to, m.created_at, m.updated_at,
		COALESCE((SELECT GROUP_CONCAT(d.user_id, ',') FROM message_deletions d WHERE d.message_id = m.id), '')
	FROM messages m`

// SQLiteDB is the single-file storage backend, used for local runs and tests.
type SQLiteDB struct {
	conn *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; avoids SQLITE_BUSY under concurrent sends.
	conn.SetMaxOpenConns(1)

	for _, stmt := range sqliteSchema {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to migrate sqlite database: %w", err)
		}
	}

	logger.Info("Opened sqlite database %s", path)
	return &SQLiteDB{conn: conn}, nil
}

func (db *SQLiteDB) Close() error {
	return db.conn.Close()
}

func (db *SQLiteDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, name, username, email, password_hash, last_seen, created_at FROM users WHERE email = ?`

	user := &models.User{}
	var lastSeen sql.NullTime
	err := db.conn.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.PasswordHash, &lastSeen, &user.CreatedAt,
	)
	if err != nil {
		return nil, sqlNotFound(err, "user")
	}
	user.LastSeen = nullTimePtr(lastSeen)

	return user, nil
}

func (db *SQLiteDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now(),
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, username, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Username, user.Email, user.PasswordHash, user.CreatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *SQLiteDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, username, email, last_seen, created_at FROM users WHERE id = ?`

	user := &models.User{}
	var lastSeen sql.NullTime
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &lastSeen, &user.CreatedAt,
	)
	if err != nil {
		return nil, sqlNotFound(err, "user")
	}
	user.LastSeen = nullTimePtr(lastSeen)

	return user, nil
}

func (db *SQLiteDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, username, email, last_seen, created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		var lastSeen sql.NullTime
		if err := rows.Scan(&user.ID, &user.Name, &user.Username, &user.Email, &lastSeen, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.LastSeen = nullTimePtr(lastSeen)
		users = append(users, user)
	}

	return users, rows.Err()
}

func (db *SQLiteDB) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, at, userID)
	return err
}

func (db *SQLiteDB) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	stored := *msg
	stored.ID = uuid.NewString()
	stored.CreatedAt = now()
	stored.UpdatedAt = stored.CreatedAt
	stored.Read = false
	stored.ReadAt = nil
	stored.DeliveredAt = nil
	stored.DeletedFor = []string{}

	query := `
		INSERT INTO messages (id, sender_id, recipient_id, type, content, media_url, reply_to, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		stored.ID, stored.SenderID, stored.RecipientID, string(stored.Type), stored.Content,
		stored.MediaURL, stored.ReplyToID, stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return &stored, nil
}

func (db *SQLiteDB) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanSQLiteMessage(db.conn.QueryRowContext(ctx, sqliteMessageSelect+` WHERE m.id = ?`, id))
	if err != nil {
		return nil, sqlNotFound(err, "message")
	}
	return msg, nil
}

func (db *SQLiteDB) ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query := sqliteMessageSelect + `
		WHERE (m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?)
		ORDER BY m.created_at, m.seq`

	rows, err := db.conn.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *SQLiteDB) MarkRead(ctx context.Context, senderID, recipientID string, at time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE messages SET read = 1, read_at = ?, updated_at = ?
		WHERE sender_id = ? AND recipient_id = ? AND read = 0`,
		at, at, senderID, recipientID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *SQLiteDB) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE messages SET delivered_at = ?, updated_at = ? WHERE id = ? AND delivered_at IS NULL`,
		at, at, id,
	)
	return err
}

func (db *SQLiteDB) SoftDelete(ctx context.Context, messageID, userID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var senderID string
	err = tx.QueryRowContext(ctx, `SELECT sender_id FROM messages WHERE id = ?`, messageID).Scan(&senderID)
	if err != nil {
		return sqlNotFound(err, "message")
	}
	if senderID != userID {
		return ErrForbidden
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_deletions (message_id, user_id) VALUES (?, ?)`, messageID, userID,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET updated_at = ? WHERE id = ?`, now(), messageID); err != nil {
		return err
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMessage(row rowScanner) (*models.Message, error) {
	msg := &models.Message{}
	var (
		msgType     string
		readAt      sql.NullTime
		deliveredAt sql.NullTime
		deletedFor  string
	)
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.RecipientID, &msgType, &msg.Content, &msg.MediaURL, &msg.Read,
		&readAt, &deliveredAt, &msg.ReplyToID, &msg.CreatedAt, &msg.UpdatedAt, &deletedFor,
	)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	msg.ReadAt = nullTimePtr(readAt)
	msg.DeliveredAt = nullTimePtr(deliveredAt)
	msg.DeletedFor = []string{}
	if deletedFor != "" {
		msg.DeletedFor = strings.Split(deletedFor, ",")
	}
	return msg, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func sqlNotFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return err
}

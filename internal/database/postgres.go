package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"direct-chat/internal/models"
	"direct-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const pgUniqueViolation = "23505"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL DEFAULT '',
		username      TEXT UNIQUE NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		last_seen     TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq          BIGSERIAL UNIQUE,
		id           TEXT PRIMARY KEY,
		sender_id    TEXT NOT NULL,
		recipient_id TEXT NOT NULL,
		type         TEXT NOT NULL DEFAULT 'text',
		content      TEXT NOT NULL,
		media_url    TEXT NOT NULL DEFAULT '',
		read         BOOLEAN NOT NULL DEFAULT FALSE,
		read_at      TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		deleted_for  TEXT[] NOT NULL DEFAULT '{}',
		reply_to     TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages (sender_id, recipient_id, created_at)`,
}

const messageColumns = `id, sender_id, recipient_id, type, content, media_url, read, read_at,
	delivered_at, deleted_for, reply_to, created_at, updated_at`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// User Repository Implementation
func (db *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, name, username, email, password_hash, last_seen, created_at FROM users WHERE email = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.PasswordHash, &user.LastSeen, &user.CreatedAt,
	)
	if err != nil {
		return nil, pgNotFound(err, "user")
	}

	return user, nil
}

func (db *PostgresDB) CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	query := `
		INSERT INTO users (id, name, username, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, username, email, created_at`

	user := &models.User{PasswordHash: string(hash)}
	err = db.pool.QueryRow(ctx, query, uuid.NewString(), req.Name, req.Username, req.Email, string(hash), now()).Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (db *PostgresDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, username, email, last_seen, created_at FROM users WHERE id = $1`

	user := &models.User{}
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Username, &user.Email, &user.LastSeen, &user.CreatedAt,
	)
	if err != nil {
		return nil, pgNotFound(err, "user")
	}

	return user, nil
}

func (db *PostgresDB) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := `SELECT id, name, username, email, last_seen, created_at FROM users ORDER BY username`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Username, &user.Email, &user.LastSeen, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (db *PostgresDB) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	_, err := db.pool.Exec(ctx, `UPDATE users SET last_seen = $2 WHERE id = $1`, userID, at)
	return err
}

// Message Repository Implementation
func (db *PostgresDB) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := db.pool.Exec(ctx, query,
		stored.ID, stored.SenderID, stored.RecipientID, string(stored.Type), stored.Content,
		stored.MediaURL, stored.ReplyToID, stored.CreatedAt, stored.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	return &stored, nil
}

func (db *PostgresDB) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanPgMessage(db.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, pgNotFound(err, "message")
	}
	return msg, nil
}

func (db *PostgresDB) ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
		ORDER BY created_at, seq`

	rows, err := db.pool.Query(ctx, query, userA, userB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanPgMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (db *PostgresDB) MarkRead(ctx context.Context, senderID, recipientID string, at time.Time) (int64, error) {
	query := `
		UPDATE messages SET read = TRUE, read_at = $3, updated_at = $3
		WHERE sender_id = $1 AND recipient_id = $2 AND read = FALSE`

	tag, err := db.pool.Exec(ctx, query, senderID, recipientID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (db *PostgresDB) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE messages SET delivered_at = $2, updated_at = $2 WHERE id = $1 AND delivered_at IS NULL`
	_, err := db.pool.Exec(ctx, query, id, at)
	return err
}

func (db *PostgresDB) SoftDelete(ctx context.Context, messageID, userID string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Check ownership first
	var senderID string
	err = tx.QueryRow(ctx, `SELECT sender_id FROM messages WHERE id = $1 FOR UPDATE`, messageID).Scan(&senderID)
	if err != nil {
		return pgNotFound(err, "message")
	}
	if senderID != userID {
		return ErrForbidden
	}

	query := `
		UPDATE messages SET deleted_for = array_append(deleted_for, $2), updated_at = $3
		WHERE id = $1 AND NOT ($2 = ANY(deleted_for))`
	if _, err := tx.Exec(ctx, query, messageID, userID, now()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func scanPgMessage(row pgx.Row) (*models.Message, error) {
	msg := &models.Message{}
	var msgType string
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.RecipientID, &msgType, &msg.Content, &msg.MediaURL, &msg.Read,
		&msg.ReadAt, &msg.DeliveredAt, &msg.DeletedFor, &msg.ReplyToID, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	if msg.DeletedFor == nil {
		msg.DeletedFor = []string{}
	}
	return msg, nil
}

func pgNotFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %w", what, ErrNotFound)
	}
	return err
}

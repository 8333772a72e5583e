package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"direct-chat/internal/config"
	"direct-chat/internal/models"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrUserExists = errors.New("user with this email or username already exists")
)

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

// MessageRepository is the durable, ordered message log. AppendMessage
// assigns the id and timestamps; ListConversation returns both directions
// of a pair in chronological order.
type MessageRepository interface {
	AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	GetMessageByID(ctx context.Context, id string) (*models.Message, error)
	ListConversation(ctx context.Context, userA, userB string) ([]*models.Message, error)
	MarkRead(ctx context.Context, senderID, recipientID string, at time.Time) (int64, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	SoftDelete(ctx context.Context, messageID, userID string) error
}

type Database interface {
	UserRepository
	MessageRepository
	Close() error
}

// Open connects to the configured backend and ensures its schema exists.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Database, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgresDB(ctx, cfg.URL)
	case config.DriverSQLite:
		return NewSQLiteDB(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func now() time.Time {
	// Postgres keeps microseconds; truncating keeps both stores comparable.
	return time.Now().UTC().Truncate(time.Microsecond)
}

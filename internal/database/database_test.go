package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"direct-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()

	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "chat-test.db"))
	require.NoError(t, err, "failed to open sqlite test database")
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, db Database, username string) *models.User {
	t.Helper()

	user, err := db.CreateUser(context.Background(), &models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return user
}

func TestSQLiteRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) Database { return newTestSQLite(t) })
}

func TestPostgresRepository(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if testing.Short() || url == "" {
		t.Skip("skipping postgres integration test: TEST_DATABASE_URL not set")
	}

	runRepositoryContract(t, func(t *testing.T) Database {
		ctx := context.Background()
		db, err := NewPostgresDB(ctx, url)
		require.NoError(t, err)
		_, err = db.pool.Exec(ctx, "TRUNCATE messages, users")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		return db
	})
}

func runRepositoryContract(t *testing.T, open func(t *testing.T) Database) {
	ctx := context.Background()

	t.Run("duplicate user is rejected", func(t *testing.T) {
		db := open(t)
		createUser(t, db, "alice")

		_, err := db.CreateUser(ctx, &models.RegisterRequest{
			Username: "alice2", Email: "alice@example.com", Password: "password123",
		})
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("user lookup and last seen", func(t *testing.T) {
		db := open(t)
		alice := createUser(t, db, "alice")

		byEmail, err := db.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byEmail.ID)
		assert.NotEmpty(t, byEmail.PasswordHash)

		_, err = db.GetUserByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		seen := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		require.NoError(t, db.UpdateLastSeen(ctx, alice.ID, seen))
		byID, err := db.GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.NotNil(t, byID.LastSeen)
		assert.True(t, seen.Equal(*byID.LastSeen))

		users, err := db.ListUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("append assigns id and timestamps", func(t *testing.T) {
		db := open(t)

		msg, err := db.AppendMessage(ctx, &models.Message{
			SenderID: "a", RecipientID: "b", Type: models.MessageTypeText, Content: "hi",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.False(t, msg.Read)
		assert.False(t, msg.CreatedAt.IsZero())
		assert.Empty(t, msg.DeletedFor)

		fetched, err := db.GetMessageByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "hi", fetched.Content)
		assert.Equal(t, models.MessageTypeText, fetched.Type)

		_, err = db.GetMessageByID(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("conversation is chronological in both directions", func(t *testing.T) {
		db := open(t)
		contents := []struct{ from, to, content string }{
			{"a", "b", "one"}, {"b", "a", "two"}, {"a", "c", "other"}, {"a", "b", "three"},
		}
		for _, c := range contents {
			_, err := db.AppendMessage(ctx, &models.Message{
				SenderID: c.from, RecipientID: c.to, Type: models.MessageTypeText, Content: c.content,
			})
			require.NoError(t, err)
		}

		conv, err := db.ListConversation(ctx, "b", "a")
		require.NoError(t, err)
		require.Len(t, conv, 3)
		assert.Equal(t, "one", conv[0].Content)
		assert.Equal(t, "two", conv[1].Content)
		assert.Equal(t, "three", conv[2].Content)
	})

	t.Run("mark read touches only matching unread rows", func(t *testing.T) {
		db := open(t)
		for _, pair := range [][2]string{{"a", "b"}, {"a", "b"}, {"b", "a"}, {"c", "b"}} {
			_, err := db.AppendMessage(ctx, &models.Message{
				SenderID: pair[0], RecipientID: pair[1], Type: models.MessageTypeText, Content: "x",
			})
			require.NoError(t, err)
		}

		at := time.Now().UTC().Truncate(time.Second)
		n, err := db.MarkRead(ctx, "a", "b", at)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = db.MarkRead(ctx, "a", "b", at)
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)

		conv, err := db.ListConversation(ctx, "a", "b")
		require.NoError(t, err)
		for _, m := range conv {
			if m.SenderID == "a" {
				assert.True(t, m.Read)
				require.NotNil(t, m.ReadAt)
			} else {
				assert.False(t, m.Read)
				assert.Nil(t, m.ReadAt)
			}
		}
	})

	t.Run("mark delivered sets timestamp once", func(t *testing.T) {
		db := open(t)
		msg, err := db.AppendMessage(ctx, &models.Message{SenderID: "a", RecipientID: "b", Type: models.MessageTypeText, Content: "x"})
		require.NoError(t, err)

		first := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		require.NoError(t, db.MarkDelivered(ctx, msg.ID, first))
		require.NoError(t, db.MarkDelivered(ctx, msg.ID, first.Add(time.Hour)))

		fetched, err := db.GetMessageByID(ctx, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, fetched.DeliveredAt)
		assert.True(t, first.Equal(*fetched.DeliveredAt))
	})

	t.Run("soft delete", func(t *testing.T) {
		db := open(t)
		msg, err := db.AppendMessage(ctx, &models.Message{SenderID: "a", RecipientID: "b", Type: models.MessageTypeText, Content: "x"})
		require.NoError(t, err)

		assert.ErrorIs(t, db.SoftDelete(ctx, "missing", "a"), ErrNotFound)
		assert.ErrorIs(t, db.SoftDelete(ctx, msg.ID, "b"), ErrForbidden)

		require.NoError(t, db.SoftDelete(ctx, msg.ID, "a"))
		require.NoError(t, db.SoftDelete(ctx, msg.ID, "a"))

		fetched, err := db.GetMessageByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, fetched.DeletedFor)
	})
}

package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"direct-chat/internal/database"
	"direct-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDeliverer records routed events and treats the users in live as
// connected.
type mockDeliverer struct {
	mu     sync.Mutex
	live   map[string]bool
	events map[string][]*models.Event
}

func newMockDeliverer(live ...string) *mockDeliverer {
	d := &mockDeliverer{live: make(map[string]bool), events: make(map[string][]*models.Event)}
	for _, u := range live {
		d.live[u] = true
	}
	return d
}

func (d *mockDeliverer) Deliver(userID string, event *models.Event) models.DeliveryStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.live[userID] {
		return models.NotLive
	}
	d.events[userID] = append(d.events[userID], event)
	return models.Delivered
}

func (d *mockDeliverer) eventsFor(userID string) []*models.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*models.Event(nil), d.events[userID]...)
}

func (d *mockDeliverer) total() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, evs := range d.events {
		n += len(evs)
	}
	return n
}

// failingStore fails every append, as a broken database would.
type failingStore struct {
	database.Database
}

func (f *failingStore) AppendMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	db    *database.SQLiteDB
	alice *models.User
	bob   *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "services-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	create := func(name string) *models.User {
		u, err := db.CreateUser(context.Background(), &models.RegisterRequest{
			Username: name, Email: name + "@example.com", Password: "password123",
		})
		require.NoError(t, err)
		return u
	}
	return &fixture{db: db, alice: create("alice"), bob: create("bob")}
}

func TestSend_OfflineRecipientIsPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	router := newMockDeliverer()
	svc := NewMessageService(f.db, f.db, router)

	msg, err := svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.Read)
	assert.Equal(t, models.MessageTypeText, msg.Type)
	assert.Nil(t, msg.DeliveredAt)
	assert.Zero(t, router.total())

	// Bob connects later and fetches history.
	history, err := svc.History(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, msg.ID, history[0].ID)
	assert.Equal(t, "hi", history[0].Content)
}

func TestSend_LiveRecipientGetsOnePush(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	router := newMockDeliverer(f.bob.ID)
	svc := NewMessageService(f.db, f.db, router)

	msg, err := svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "hi"})
	require.NoError(t, err)

	events := router.eventsFor(f.bob.ID)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventNewMessage, events[0].Type)
	pushed, ok := events[0].Data.(*models.Message)
	require.True(t, ok)
	assert.Equal(t, msg.ID, pushed.ID)
	assert.Empty(t, router.eventsFor(f.alice.ID))

	require.NotNil(t, msg.DeliveredAt)
	stored, err := f.db.GetMessageByID(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DeliveredAt)
}

func TestSend_StorageFailureSkipsPush(t *testing.T) {
	f := newFixture(t)
	router := newMockDeliverer(f.bob.ID)
	svc := NewMessageService(&failingStore{Database: f.db}, f.db, router)

	_, err := svc.Send(context.Background(), f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "hi"})
	assert.ErrorIs(t, err, ErrStorage)
	assert.Zero(t, router.total())
}

func TestSend_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	router := newMockDeliverer(f.alice.ID, f.bob.ID)
	svc := NewMessageService(f.db, f.db, router)

	_, err := svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.alice.ID, Content: "me"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: "", Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Send(ctx, "", &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "x"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "   "})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: "nobody", Content: "x"})
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "x", ReplyToID: "missing"})
	assert.ErrorIs(t, err, database.ErrNotFound)

	assert.Zero(t, router.total())
}

func TestSend_Reply(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := NewMessageService(f.db, f.db, newMockDeliverer())

	parent, err := svc.Send(ctx, f.bob.ID, &models.SendMessageRequest{RecipientID: f.alice.ID, Content: "question"})
	require.NoError(t, err)

	reply, err := svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{
		RecipientID: f.bob.ID, Content: "answer", Type: models.MessageTypeImage,
		MediaURL: "https://cdn.example.com/a.png", ReplyToID: parent.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, parent.ID, reply.ReplyToID)
	assert.Equal(t, models.MessageTypeImage, reply.Type)
	assert.Equal(t, "https://cdn.example.com/a.png", reply.MediaURL)
}

func TestMarkRead_IsIdempotentAndNotifiesSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	router := newMockDeliverer(f.alice.ID)
	svc := NewMessageService(f.db, f.db, router)

	for _, content := range []string{"one", "two"} {
		_, err := svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: content})
		require.NoError(t, err)
	}
	reverse, err := svc.Send(ctx, f.bob.ID, &models.SendMessageRequest{RecipientID: f.alice.ID, Content: "back"})
	require.NoError(t, err)

	updated, err := svc.MarkRead(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, updated)

	receipts := filterEvents(router.eventsFor(f.alice.ID), models.EventMessagesRead)
	require.Len(t, receipts, 1)
	payload := receipts[0].Data.(models.MessagesReadPayload)
	assert.Equal(t, f.bob.ID, payload.ReaderID)
	assert.EqualValues(t, 2, payload.Count)

	updated, err = svc.MarkRead(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	assert.Zero(t, updated)
	assert.Len(t, filterEvents(router.eventsFor(f.alice.ID), models.EventMessagesRead), 1)

	history, err := svc.History(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	for _, m := range history {
		assert.Equal(t, m.ID != reverse.ID, m.Read, "message %q", m.Content)
	}

	_, err = svc.MarkRead(ctx, f.bob.ID, f.bob.ID)
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestDelete_HidesOnlyForSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	router := newMockDeliverer(f.alice.ID, f.bob.ID)
	svc := NewMessageService(f.db, f.db, router)

	msg, err := svc.Send(ctx, f.alice.ID, &models.SendMessageRequest{RecipientID: f.bob.ID, Content: "oops"})
	require.NoError(t, err)
	pushesBefore := router.total()

	assert.ErrorIs(t, svc.Delete(ctx, f.bob.ID, msg.ID), database.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, f.alice.ID, "missing"), database.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, f.alice.ID, msg.ID))

	aliceView, err := svc.History(ctx, f.alice.ID, f.bob.ID)
	require.NoError(t, err)
	assert.Empty(t, aliceView)

	bobView, err := svc.History(ctx, f.bob.ID, f.alice.ID)
	require.NoError(t, err)
	require.Len(t, bobView, 1)
	assert.Equal(t, msg.ID, bobView[0].ID)

	assert.Equal(t, pushesBefore, router.total(), "deletion pushes no live event")
}

func TestUserService_ListKnownUsers(t *testing.T) {
	f := newFixture(t)
	svc := NewUserService(f.db, onlineSet{f.bob.ID: true})

	users, err := svc.ListKnownUsers(context.Background(), f.alice.ID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, f.bob.ID, users[0].ID)
	assert.True(t, users[0].IsOnline)
}

type onlineSet map[string]bool

func (s onlineSet) IsOnline(userID string) bool { return s[userID] }

func filterEvents(events []*models.Event, eventType models.EventType) []*models.Event {
	var out []*models.Event
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

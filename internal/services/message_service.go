package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"direct-chat/internal/database"
	"direct-chat/internal/models"
	"direct-chat/pkg/logger"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrStorage        = errors.New("storage error")
)

// EventDeliverer pushes an event to a user's live connection.
type EventDeliverer interface {
	Deliver(userID string, event *models.Event) models.DeliveryStatus
}

// MessageService coordinates persistence and live delivery. Storage is the
// durability boundary: nothing is pushed for a message that failed to
// persist, and a failed push never undoes a stored message.
type MessageService struct {
	messages database.MessageRepository
	users    database.UserRepository
	router   EventDeliverer
	now      func() time.Time
}

func NewMessageService(messages database.MessageRepository, users database.UserRepository, router EventDeliverer) *MessageService {
	return &MessageService{
		messages: messages,
		users:    users,
		router:   router,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// Send persists a message from senderID and pushes it to the recipient if
// they are live. The returned message is the stored copy.
func (s *MessageService) Send(ctx context.Context, senderID string, req *models.SendMessageRequest) (*models.Message, error) {
	if err := s.validateSend(ctx, senderID, req); err != nil {
		return nil, err
	}

	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	stored, err := s.messages.AppendMessage(ctx, &models.Message{
		SenderID:    senderID,
		RecipientID: req.RecipientID,
		Type:        msgType,
		Content:     req.Content,
		MediaURL:    req.MediaURL,
		ReplyToID:   req.ReplyToID,
	})
	if err != nil {
		logger.Error("Error saving message from %s to %s: %v", senderID, req.RecipientID, err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	pushed := *stored
	status := s.router.Deliver(stored.RecipientID, &models.Event{Type: models.EventNewMessage, Data: &pushed})
	// Delivered means queued on the live connection; a frame lost to a later
	// eviction is recovered from history.
	if status == models.Delivered {
		at := s.now()
		if err := s.messages.MarkDelivered(ctx, stored.ID, at); err != nil {
			logger.Warn("Error recording delivery of message %s: %v", stored.ID, err)
		} else {
			stored.DeliveredAt = &at
		}
	}
	logger.Debug("Message %s from %s to %s: %s", stored.ID, senderID, stored.RecipientID, status)

	return stored, nil
}

func (s *MessageService) validateSend(ctx context.Context, senderID string, req *models.SendMessageRequest) error {
	req.RecipientID = strings.TrimSpace(req.RecipientID)
	if senderID == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidMessage)
	}
	if err := models.Validate(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content is empty", ErrInvalidMessage)
	}
	if req.RecipientID == senderID {
		return fmt.Errorf("%w: cannot send a message to yourself", ErrInvalidMessage)
	}

	if _, err := s.users.GetUserByID(ctx, req.RecipientID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("recipient %w", database.ErrNotFound)
		}
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if req.ReplyToID != "" {
		parent, err := s.messages.GetMessageByID(ctx, req.ReplyToID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("reply target %w", database.ErrNotFound)
			}
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if !parent.InConversation(senderID, req.RecipientID) {
			return fmt.Errorf("reply target %w", database.ErrNotFound)
		}
	}
	return nil
}

// MarkRead marks every unread message from senderID to readerID as read
// and, if anything changed, tells the sender's live connection.
func (s *MessageService) MarkRead(ctx context.Context, readerID, senderID string) (int64, error) {
	senderID = strings.TrimSpace(senderID)
	if readerID == "" || senderID == "" {
		return 0, fmt.Errorf("%w: missing user id", ErrInvalidMessage)
	}
	if readerID == senderID {
		return 0, fmt.Errorf("%w: cannot mark your own messages read", ErrInvalidMessage)
	}

	at := s.now()
	updated, err := s.messages.MarkRead(ctx, senderID, readerID, at)
	if err != nil {
		logger.Error("Error marking messages from %s to %s read: %v", senderID, readerID, err)
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if updated > 0 {
		s.router.Deliver(senderID, &models.Event{
			Type: models.EventMessagesRead,
			Data: models.MessagesReadPayload{ReaderID: readerID, Count: updated, ReadAt: at},
		})
	}
	return updated, nil
}

// Delete hides a message from its sender. The recipient's copy is left
// visible and the recipient is not notified.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string) error {
	if userID == "" || messageID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidMessage)
	}

	err := s.messages.SoftDelete(ctx, messageID, userID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrForbidden):
		return err
	default:
		logger.Error("Error deleting message %s: %v", messageID, err)
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
}

// History returns the conversation between viewerID and otherID oldest
// first, without the messages viewerID has deleted.
func (s *MessageService) History(ctx context.Context, viewerID, otherID string) ([]*models.Message, error) {
	if viewerID == "" || otherID == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidMessage)
	}

	all, err := s.messages.ListConversation(ctx, viewerID, otherID)
	if err != nil {
		logger.Error("Error loading conversation %s/%s: %v", viewerID, otherID, err)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	visible := make([]*models.Message, 0, len(all))
	for _, msg := range all {
		if !msg.HiddenFor(viewerID) {
			visible = append(visible, msg)
		}
	}
	return visible, nil
}

package models

import (
	"slices"
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
	MessageTypeAudio MessageType = "audio"
)

// Message is a persisted direct message between two users.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"senderId"`
	RecipientID string      `json:"recipientId"`
	Type        MessageType `json:"type"`
	Content     string      `json:"content"`
	MediaURL    string      `json:"mediaUrl,omitempty"`
	Read        bool        `json:"read"`
	ReadAt      *time.Time  `json:"readAt,omitempty"`
	// DeliveredAt marks when the message was queued to the recipient's live
	// connection, not when the client received it.
	DeliveredAt *time.Time  `json:"deliveredAt,omitempty"`
	DeletedFor  []string    `json:"deletedFor"`
	ReplyToID   string      `json:"replyTo,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// HiddenFor reports whether userID has soft-deleted the message.
func (m *Message) HiddenFor(userID string) bool {
	return slices.Contains(m.DeletedFor, userID)
}

// InConversation reports whether the message was exchanged between a and b,
// in either direction.
func (m *Message) InConversation(a, b string) bool {
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

type SendMessageRequest struct {
	RecipientID string      `json:"recipientId" validate:"required,max=64"`
	Content     string      `json:"content" validate:"required,max=10000"`
	Type        MessageType `json:"type" validate:"omitempty,oneof=text image file audio"`
	MediaURL    string      `json:"mediaUrl" validate:"omitempty,url,max=2048"`
	ReplyToID   string      `json:"replyToId" validate:"omitempty,max=64"`
}

type MarkReadResponse struct {
	Message string `json:"message"`
	Updated int64  `json:"updated"`
}

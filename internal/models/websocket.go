package models

import (
	"encoding/json"
	"time"
)

type EventType string

// Inbound event types, client to server.
const (
	EventAuthenticate EventType = "authenticate"
	EventSendMessage  EventType = "sendMessage"
	EventTyping       EventType = "typing"
	EventMarkRead     EventType = "markRead"
)

// Outbound event types, server to client.
const (
	EventAuthenticated EventType = "authenticated"
	EventUserStatus    EventType = "userStatus"
	EventNewMessage    EventType = "newMessage"
	EventMessageSent   EventType = "messageSent"
	EventUserTyping    EventType = "userTyping"
	EventMessagesRead  EventType = "messagesRead"
	EventError         EventType = "error"
)

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

// DeliveryStatus is the outcome of a live push. NotLive is an expected
// result for offline users, not a failure.
type DeliveryStatus int

const (
	NotLive DeliveryStatus = iota
	Delivered
)

func (s DeliveryStatus) String() string {
	if s == Delivered {
		return "delivered"
	}
	return "not-live"
}

// Event is an outbound frame.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// InboundEvent is a client frame; Data is decoded per Type.
type InboundEvent struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type AuthenticatePayload struct {
	Token  string `json:"token"`
	UserID string `json:"userId,omitempty"`
}

type TypingPayload struct {
	RecipientID string `json:"recipientId"`
	IsTyping    bool   `json:"isTyping"`
}

type MarkReadPayload struct {
	SenderID string `json:"senderId"`
}

type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

type UserStatusPayload struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}

type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type MessagesReadPayload struct {
	ReaderID string    `json:"readerId"`
	Count    int64     `json:"count"`
	ReadAt   time.Time `json:"readAt"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func NewUserStatusEvent(userID string, status PresenceStatus) *Event {
	return &Event{Type: EventUserStatus, Data: UserStatusPayload{UserID: userID, Status: status}}
}

func NewErrorEvent(message string) *Event {
	return &Event{Type: EventError, Data: ErrorPayload{Message: message}}
}

package models

import "time"

type Conversation struct {
	ID            int64      `json:"id"`
	IsGroup       bool       `json:"is_group"`
	Subject       *string    `json:"subject,omitempty"`
	CreatedBy     int64      `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	SenderUsername string     `json:"sender,omitempty"`
	RecipientID    *int64     `json:"recipient_id,omitempty"`
	Subject        *string    `json:"subject,omitempty"`
	Content        string     `json:"content"`
	IsRead         bool       `json:"is_read"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	SentAt         time.Time  `json:"sent_at"`
}

// InboxEntry is one row of a user's inbox: the conversation, who it is
// with, the last message still visible to that user, and the unread count.
type InboxEntry struct {
	Conversation
	WithUser        string     `json:"with_user"`
	LastMessage     *string    `json:"last_message,omitempty"`
	LastSender      *string    `json:"last_sender,omitempty"`
	LastMessageTime *time.Time `json:"last_message_time,omitempty"`
	UnreadCount     int        `json:"unread_count"`
}

type Inbox struct {
	Conversations []InboxEntry `json:"conversations"`
	TotalUnread   int          `json:"total_unread"`
}

package models

import "time"

const (
	ScheduledStatusPending   = "pending"
	ScheduledStatusSent      = "sent"
	ScheduledStatusCancelled = "cancelled"
)

type ScheduledMessage struct {
	ID            int64     `json:"id"`
	SenderID      int64     `json:"sender_id"`
	RecipientID   int64     `json:"recipient_id"`
	Recipient     string    `json:"recipient,omitempty"`
	Subject       *string   `json:"subject,omitempty"`
	Content       string    `json:"content"`
	ScheduledFor  time.Time `json:"scheduled_for"`
	Status        string    `json:"status"`
	SentMessageID *int64    `json:"sent_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

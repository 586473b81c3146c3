package model

import (
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the delivery channel of a message.
type MessageType string

const (
	MessageTypeEmail              MessageType = "EMAIL"
	MessageTypeSMS                MessageType = "SMS"
	MessageTypePushNotification   MessageType = "PUSH_NOTIFICATION"
	MessageTypeSystemNotification MessageType = "SYSTEM_NOTIFICATION"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeEmail, MessageTypeSMS, MessageTypePushNotification, MessageTypeSystemNotification:
		return true
	}
	return false
}

// MessageStatus is the lifecycle state of a message.
//
// PENDING and SCHEDULED messages are picked up by the cron sweep;
// SENT, DELIVERED and READ are the success path; FAILED is terminal
// once the retry budget is exhausted.
type MessageStatus string

const (
	StatusPending   MessageStatus = "PENDING"
	StatusScheduled MessageStatus = "SCHEDULED"
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

// Valid reports whether s is a known message status.
func (s MessageStatus) Valid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// MessagePriority orders messages within a cron batch.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "LOW"
	PriorityNormal MessagePriority = "NORMAL"
	PriorityHigh   MessagePriority = "HIGH"
	PriorityUrgent MessagePriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p MessagePriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Attachment is an inline file attached to a message.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     []byte `json:"content"`
	ContentType string `json:"content_type"`
}

// Message is a unit of outbound communication tracked through its lifecycle.
type Message struct {
	ID            uuid.UUID         `json:"id"`
	From          string            `json:"from"`
	To            []string          `json:"to"`
	CC            []string          `json:"cc,omitempty"`
	BCC           []string          `json:"bcc,omitempty"`
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	HTMLBody      string            `json:"html_body,omitempty"`
	Attachments   []Attachment      `json:"attachments,omitempty"`
	Type          MessageType       `json:"type"`
	Status        MessageStatus     `json:"status"`
	Priority      MessagePriority   `json:"priority"`
	RetryCount    int               `json:"retry_count"`
	MaxRetries    int               `json:"max_retries"`
	ScheduledAt   *time.Time        `json:"scheduled_at,omitempty"`
	NextAttemptAt *time.Time        `json:"next_attempt_at,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SendResult is the transport-level outcome of a delivery attempt.
type SendResult struct {
	MessageID string   `json:"message_id"`
	Accepted  []string `json:"accepted"`
	Rejected  []string `json:"rejected"`
}

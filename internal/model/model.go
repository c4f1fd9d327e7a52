// Package model holds the product types shared by the store, the
// queue engine, the webhook dispatcher, and the HTTP API. None of
// them carry JSON tags themselves — wire encoding lives at the API
// boundary in internal/httpapi.
package model

import "time"

// DeliveryState is the tagged state of a Delivery row.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryLeased    DeliveryState = "leased"
	DeliveryDelivered DeliveryState = "delivered"
)

// NudgeState is the tagged state of a WebhookNudge row.
type NudgeState string

const (
	NudgePending NudgeState = "pending"
	NudgeSending NudgeState = "sending"
	NudgeFailed  NudgeState = "failed"
)

// Message is a captured chat message. Immutable once inserted.
type Message struct {
	ID             string
	ChatBotID      string
	ChatMessageID  string
	AuthorID       string
	AuthorName     string
	ChannelID      string // empty if not applicable
	GuildID        string // empty if not applicable
	IsDM           bool
	Content        string
	Timestamp      time.Time
	DedupeKey      string
	CreatedAt      time.Time
}

// Delivery is one message's routing to exactly one backend.
type Delivery struct {
	ID              string
	MessageID       string
	BackendBotID    string
	State           DeliveryState
	DeliveredAt     *time.Time
	LeaseID         string
	LeaseExpiresAt  *time.Time
	Attempts        int
	LastError       string
	CreatedAt       time.Time
}

// WebhookNudge is the single pending outbox row for a backend.
type WebhookNudge struct {
	ID             string
	BackendBotID   string
	ChatBotID      string
	LastDedupeKey  string
	State          NudgeState
	Attempts       int
	NextAttemptAt  time.Time
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BackendIdentity is the authenticated identity of a backend consumer.
type BackendIdentity struct {
	ID   string
	Name string
}

// DeliveryRecord pairs a Delivery with the Message it carries, the
// shape handed back across the lease/ack/pending endpoints.
type DeliveryRecord struct {
	DeliveryID   string
	BackendBotID string
	Message      Message
}

// LeasedDeliveryRecord is a DeliveryRecord plus the lease metadata
// that the §4.4.a Lease operation hands out.
type LeasedDeliveryRecord struct {
	DeliveryID     string
	LeaseID        string
	BackendBotID   string
	Message        Message
	LeaseExpiresAt time.Time
}

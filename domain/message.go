// Package domain contains core concepts of the messaging layer.
// This file defines Message events and related rules.
// Messages are immutable once the server assigns a sequence number.
package domain

import (
	"time"
)

// Message is a server-confirmed chat event. Seq is assigned by the
// history store and is strictly increasing within a channel, so
// ordering by Seq is equivalent to ordering by CreatedAt.
type Message struct {
	Seq       int64     `json:"id"`
	Channel   string    `json:"channel"` // channel key, see Channel.Key
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingMessage is a client-originated message before server
// acknowledgment. It is owned exclusively by the submitting client
// until reconciled with its confirmed copy or timed out.
type PendingMessage struct {
	ClientTempID string    `json:"client_temp_id"`
	Channel      string    `json:"channel"`
	SenderID     string    `json:"sender_id"`
	Content      string    `json:"content"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

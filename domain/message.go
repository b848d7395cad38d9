// Package domain contains core concepts of the chat system.
// This file defines Message records and related rules.
// Sender and Chat are immutable once a message exists.
package domain

import (
	"strings"
	"time"
)

const MaxAttachments = 5

// Attachment points to stored bytes. Path is what the storage backend
// needs to delete them, URL is what clients fetch.
type Attachment struct {
	URL         string `json:"url"`
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
}

type Message struct {
	ID          string       `json:"id"`
	Sender      string       `json:"sender"`
	Chat        string       `json:"chat"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// HasBody reports whether the message carries text or at least one attachment.
func (m Message) HasBody() bool {
	return strings.TrimSpace(m.Content) != "" || len(m.Attachments) > 0
}

// Newer orders messages of a chat: creation time, then id.
func (m Message) Newer(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.After(other.CreatedAt)
	}
	return m.ID > other.ID
}

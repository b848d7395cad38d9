package domain

import "time"

// ChatView is a Chat with its references resolved for consumers.
type ChatView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	IsGroupChat  bool         `json:"isGroupChat"`
	Participants []Profile    `json:"participants"`
	Admin        string       `json:"admin"`
	LastMessage  *MessageView `json:"lastMessage,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

type MessageView struct {
	ID          string       `json:"id"`
	Sender      Profile      `json:"sender"`
	Chat        string       `json:"chat"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Package event defines what the chat core pushes to connected users.
package event

import "time"

type Kind string

const (
	NewChat         Kind = "newChat"
	UpdateGroupName Kind = "updateGroupName"
	LeaveChat       Kind = "leaveChat"
	MessageReceived Kind = "messageReceived"
	MessageDeleted  Kind = "messageDeleted"
	Typing          Kind = "typing"
	StopTyping      Kind = "stopTyping"
	Connected       Kind = "connected"
)

// Event is the wire envelope written to a live connection.
type Event struct {
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// Intent is an event addressed to every connection of one actor.
type Intent struct {
	ActorID string
	Event   Event
}

// TypingPayload is relayed while a participant composes a message.
type TypingPayload struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
}

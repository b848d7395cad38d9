// Package domain contains core concepts of the chat system.
// This file defines Chat records and their membership rules.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

const (
	// MinGroupSize counts the creator.
	MinGroupSize     = 3
	OneOnOneChatName = "One on one chat"
)

// Chat is the stored conversation record. LastMessage, when set, points
// to the newest undeleted message of this chat.
type Chat struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	IsGroupChat  bool      `json:"isGroupChat"`
	Participants []string  `json:"participants"`
	Admin        string    `json:"admin"`
	LastMessage  *string   `json:"lastMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func NewOneOnOneChat(creator, other string, at time.Time) Chat {
	return Chat{
		ID:           uuid.NewString(),
		Name:         OneOnOneChatName,
		Participants: []string{creator, other},
		Admin:        creator,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func NewGroupChat(creator, name string, members []string, at time.Time) Chat {
	return Chat{
		ID:           uuid.NewString(),
		Name:         name,
		IsGroupChat:  true,
		Participants: members,
		Admin:        creator,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func (c Chat) HasParticipant(userID string) bool {
	return lo.Contains(c.Participants, userID)
}

func (c Chat) IsAdmin(userID string) bool {
	return c.Admin == userID
}

// OtherParticipants is the fan-out audience of an action performed by actor.
func (c Chat) OtherParticipants(actor string) []string {
	return lo.Without(c.Participants, actor)
}

// PairKey identifies the unordered pair of a one on one chat.
func PairKey(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

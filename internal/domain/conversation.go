package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationType distinguishes who sits on the far side of a thread.
type ConversationType string

const (
	ConversationInternal  ConversationType = "internal"
	ConversationExternal  ConversationType = "external"
	ConversationApplicant ConversationType = "applicant"
)

// Conversation is a message thread attached to exactly one record.
type Conversation struct {
	ID            uuid.UUID
	RecordID      uuid.UUID
	Type          ConversationType
	CreationGroup GroupID
	Closed        bool
	RequireAnswer bool

	// Participants are the groups involved in the thread. The applicant is an
	// implicit participant of applicant-type conversations.
	Participants []GroupID
}

// Message is one entry in a conversation. AuthorGroup is nil for
// applicant-authored messages.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	AuthorGroup    *GroupID
	RecordState    RecordState
	Text           string
	CreatedAt      time.Time
}

// FromApplicant reports whether the message was authored by the applicant.
func (m *Message) FromApplicant() bool { return m.AuthorGroup == nil }

// UnreadCounter marks that a group has unread messages in a conversation.
// Existence of the row is authoritative; the count inside is cosmetic. Rows
// are created lazily on message traffic and deleted when the group reads the
// conversation.
type UnreadCounter struct {
	ConversationID uuid.UUID
	GroupID        GroupID
	Count          int
}

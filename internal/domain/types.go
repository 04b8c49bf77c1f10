package domain

import (
	"encoding/json"
	"time"
)

// User is a directory profile row.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DisplayName returns the name shown for a user: full name, else the local
// part of the email, else "Unknown".
func (u *User) DisplayName() string {
	if u == nil {
		return "Unknown"
	}
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return EmailLocalPart(u.Email)
	}
	return "Unknown"
}

// IdentityMetadata is the profile data attached to an identity at sign-up.
type IdentityMetadata struct {
	FullName    string `json:"full_name,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Identity is an auth record. A User profile row may or may not exist for it.
type Identity struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Metadata  IdentityMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// Chat is a conversation. LastMessage is a denormalized cache of the most
// recent message content, maintained best-effort by senders.
type Chat struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	LastMessage    *string   `json:"last_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	LabelID        *string   `json:"label_id,omitempty"`
	AssignedTo     *string   `json:"assigned_to,omitempty"`
	CreatedBy      string    `json:"created_by,omitempty"`
}

// ChatUpdate is a partial chat row. Nil fields are left unchanged.
type ChatUpdate struct {
	Name           *string    `json:"name,omitempty"`
	LastMessage    *string    `json:"last_message,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	LabelID        *string    `json:"label_id,omitempty"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u ChatUpdate) Empty() bool {
	return u.Name == nil && u.LastMessage == nil && u.LastActivityAt == nil &&
		u.LabelID == nil && u.AssignedTo == nil
}

// Message is an immutable chat message. Sender is resolved by readers and is
// nil when resolution failed.
type Message struct {
	ID             string    `json:"id"`
	ChatID         string    `json:"chat_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	AttachmentURL  *string   `json:"attachment_url,omitempty"`
	AttachmentType *string   `json:"attachment_type,omitempty"`
	Sender         *User     `json:"sender,omitempty"`
}

// Label tags a chat for filtering.
type Label struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant grants a user visibility into a chat.
type Participant struct {
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Attachment is a stable reference to an uploaded file.
type Attachment struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Change kinds carried by ChangeEvent.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// Table names.
const (
	TableUsers        = "users"
	TableChats        = "chats"
	TableMessages     = "messages"
	TableLabels       = "labels"
	TableParticipants = "chat_participants"
)

// ChangeEvent is a row-change notification delivered by the realtime feed.
type ChangeEvent struct {
	Kind            string          `json:"kind"`
	Table           string          `json:"table"`
	Row             json.RawMessage `json:"row"`
	CommitTimestamp time.Time       `json:"commit_timestamp"`
}

// NewChangeEvent encodes row into a ChangeEvent.
func NewChangeEvent(kind, table string, row any, at time.Time) (ChangeEvent, error) {
	raw, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{Kind: kind, Table: table, Row: raw, CommitTimestamp: at}, nil
}

// Message decodes the row as a Message.
func (e ChangeEvent) Message() (*Message, error) {
	var m Message
	if err := json.Unmarshal(e.Row, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

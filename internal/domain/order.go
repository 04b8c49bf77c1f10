package domain

import (
	"slices"
	"strings"
	"time"
)

// SortChatsByActivity orders chats by last activity, most recent first.
func SortChatsByActivity(chats []Chat) {
	slices.SortStableFunc(chats, func(a, b Chat) int {
		if c := b.LastActivityAt.Compare(a.LastActivityAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// SortMessagesByCreation orders messages oldest first.
func SortMessagesByCreation(msgs []Message) {
	slices.SortStableFunc(msgs, compareMessages)
}

// InsertMessageSorted inserts m into msgs (already ascending) at its ordered
// position. Messages with an equal timestamp keep arrival order.
func InsertMessageSorted(msgs []Message, m Message) []Message {
	i, _ := slices.BinarySearchFunc(msgs, m, func(e, t Message) int {
		if e.CreatedAt.After(t.CreatedAt) {
			return 1
		}
		return -1
	})
	return slices.Insert(msgs, i, m)
}

func compareMessages(a, b Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// EmailLocalPart returns the part of an email address before '@'.
func EmailLocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

// UnixMilli converts a stored millisecond timestamp to UTC time.
func UnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

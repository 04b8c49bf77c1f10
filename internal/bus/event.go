package bus

import (
	"strings"
	"time"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Well-known event kinds and namespaces.
const (
	KindStatusChanged = "session.status_changed"
	KindChatsChanged  = "state.chats"
	KindMessages      = "state.messages"

	NamespaceRows   = "row."
	NamespaceNotify = "notify."
	NamespaceState  = "state."
)

// RowKind returns the event kind for a row change, e.g. "row.messages.insert".
func RowKind(table, change string) string {
	return NamespaceRows + table + "." + strings.ToLower(change)
}

// RowNamespace returns the namespace matching every change on table.
func RowNamespace(table string) string {
	return NamespaceRows + table + "."
}

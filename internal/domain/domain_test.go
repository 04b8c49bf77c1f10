package domain

import (
	"testing"
	"time"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestSortChatsByActivity(t *testing.T) {
	chats := []Chat{
		{ID: "old", LastActivityAt: base},
		{ID: "new", LastActivityAt: base.Add(time.Hour)},
		{ID: "tie-b", LastActivityAt: base.Add(time.Minute)},
		{ID: "tie-a", LastActivityAt: base.Add(time.Minute)},
	}
	SortChatsByActivity(chats)

	want := []string{"new", "tie-a", "tie-b", "old"}
	for i, id := range want {
		if chats[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, chats[i].ID, id)
		}
	}
}

func TestSortMessagesByCreation(t *testing.T) {
	msgs := []Message{
		{ID: "c", CreatedAt: base.Add(2 * time.Second)},
		{ID: "a", CreatedAt: base},
		{ID: "b", CreatedAt: base.Add(time.Second)},
	}
	SortMessagesByCreation(msgs)
	for i, id := range []string{"a", "b", "c"} {
		if msgs[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, msgs[i].ID, id)
		}
	}
}

func TestInsertMessageSorted(t *testing.T) {
	msgs := []Message{
		{ID: "1", CreatedAt: base},
		{ID: "3", CreatedAt: base.Add(2 * time.Second)},
	}

	msgs = InsertMessageSorted(msgs, Message{ID: "4", CreatedAt: base.Add(3 * time.Second)})
	msgs = InsertMessageSorted(msgs, Message{ID: "0", CreatedAt: base.Add(-time.Second)})
	msgs = InsertMessageSorted(msgs, Message{ID: "2", CreatedAt: base.Add(time.Second)})
	msgs = InsertMessageSorted(msgs, Message{ID: "2b", CreatedAt: base.Add(time.Second)})

	want := []string{"0", "1", "2", "2b", "3", "4"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("position %d = %s, want %s", i, msgs[i].ID, id)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *User
		want string
	}{
		{"nil", nil, "Unknown"},
		{"full name", &User{FullName: "Ana Lima", Email: "ana@example.com"}, "Ana Lima"},
		{"email fallback", &User{Email: "ana.lima@example.com"}, "ana.lima"},
		{"empty", &User{}, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmailLocalPart(t *testing.T) {
	if got := EmailLocalPart("bo@example.com"); got != "bo" {
		t.Errorf("EmailLocalPart = %q", got)
	}
	if got := EmailLocalPart("no-at-sign"); got != "no-at-sign" {
		t.Errorf("EmailLocalPart = %q", got)
	}
}

func TestChatUpdateEmpty(t *testing.T) {
	if !(ChatUpdate{}).Empty() {
		t.Error("zero update should be empty")
	}
	name := "x"
	if (ChatUpdate{Name: &name}).Empty() {
		t.Error("update with a name should not be empty")
	}
}

func TestChangeEventMessage(t *testing.T) {
	m := Message{ID: "m1", ChatID: "c1", SenderID: "u1", Content: "hi", CreatedAt: base}
	evt, err := NewChangeEvent(ChangeInsert, TableMessages, m, base)
	if err != nil {
		t.Fatal(err)
	}
	got, err := evt.Message()
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "m1" || got.Content != "hi" || !got.CreatedAt.Equal(base) {
		t.Errorf("decoded %+v", got)
	}
	if _, err := (ChangeEvent{Row: []byte("{")}).Message(); err == nil {
		t.Error("expected decode error")
	}
}

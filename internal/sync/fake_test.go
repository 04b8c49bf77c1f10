package sync

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeData is an in-memory DataAccess that records every call.
type fakeData struct {
	mu gosync.Mutex

	calls        []string
	ident        *domain.Identity
	identErr     error
	users        map[string]domain.User
	chats        map[string]domain.Chat
	participants map[string][]string
	messages     map[string][]domain.Message
	labels       []domain.Label
	updates      map[string]domain.ChatUpdate
	uploads      []string

	// fail maps a method name to the error it returns.
	fail map[string]error
	// failMember makes AddParticipant fail for one user.
	failMember map[string]error
	// gates blocks ListMessages for a chat until the channel is closed.
	gates   map[string]chan struct{}
	entered chan string
	// searchGates blocks ListChats for a search text until the channel is
	// closed; searchFail then fails that listing.
	searchGates map[string]chan struct{}
	searchFail  map[string]error

	stream  *fakeStream
	counter int
}

func newFakeData() *fakeData {
	return &fakeData{
		users:        map[string]domain.User{},
		chats:        map[string]domain.Chat{},
		participants: map[string][]string{},
		messages:     map[string][]domain.Message{},
		updates:      map[string]domain.ChatUpdate{},
		fail:         map[string]error{},
		failMember:   map[string]error{},
		gates:        map[string]chan struct{}{},
		searchGates:  map[string]chan struct{}{},
		searchFail:   map[string]error{},
	}
}

func (f *fakeData) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.fail[name]
}

func (f *fakeData) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (f *fakeData) allCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeData) nextID(prefix string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	return fmt.Sprintf("%s-%d", prefix, f.counter)
}

func (f *fakeData) addChat(c domain.Chat, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats[c.ID] = c
	f.participants[c.ID] = append(f.participants[c.ID], members...)
}

func (f *fakeData) CurrentIdentity(context.Context) (*domain.Identity, error) {
	if err := f.record("CurrentIdentity"); err != nil {
		return nil, err
	}
	return f.ident, f.identErr
}

func (f *fakeData) SignOut(context.Context) error {
	return f.record("SignOut")
}

func (f *fakeData) GetUser(_ context.Context, id string) (*domain.User, error) {
	if err := f.record("GetUser"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeData) InsertUser(_ context.Context, u *domain.User) (*domain.User, error) {
	if err := f.record("InsertUser"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[u.ID]; ok {
		return nil, client.ErrConflict
	}
	out := *u
	out.CreatedAt = t0
	f.users[u.ID] = out
	return &out, nil
}

func (f *fakeData) ListUsers(context.Context) ([]domain.User, error) {
	if err := f.record("ListUsers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	return out, nil
}

func (f *fakeData) ListLabels(context.Context) ([]domain.Label, error) {
	if err := f.record("ListLabels"); err != nil {
		return nil, err
	}
	return f.labels, nil
}

func (f *fakeData) ListChats(_ context.Context, q client.ChatFilter) ([]domain.Chat, error) {
	if err := f.record("ListChats"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gate := f.searchGates[q.Search]
	f.mu.Unlock()
	if gate != nil {
		f.entered <- q.Search
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.searchFail[q.Search]; err != nil {
		return nil, err
	}
	var out []domain.Chat
	for _, c := range f.chats {
		if q.Search != "" && !strings.Contains(strings.ToLower(c.Name), strings.ToLower(q.Search)) {
			continue
		}
		if q.LabelID != "" && (c.LabelID == nil || *c.LabelID != q.LabelID) {
			continue
		}
		if q.AssignedTo != "" && (c.AssignedTo == nil || *c.AssignedTo != q.AssignedTo) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeData) InsertChat(_ context.Context, c *domain.Chat) (*domain.Chat, error) {
	if err := f.record("InsertChat"); err != nil {
		return nil, err
	}
	out := *c
	out.ID = f.nextID("chat")
	out.CreatedAt = t0.Add(time.Hour)
	out.LastActivityAt = out.CreatedAt
	f.mu.Lock()
	f.chats[out.ID] = out
	f.mu.Unlock()
	return &out, nil
}

func (f *fakeData) UpdateChat(_ context.Context, id string, u domain.ChatUpdate) error {
	if err := f.record("UpdateChat"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = u
	return nil
}

func (f *fakeData) DeleteChat(_ context.Context, id string) error {
	if err := f.record("DeleteChat"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.chats, id)
	return nil
}

func (f *fakeData) AddParticipant(_ context.Context, chatID, userID string) error {
	if err := f.record("AddParticipant"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failMember[userID]; err != nil {
		return err
	}
	f.participants[chatID] = append(f.participants[chatID], userID)
	return nil
}

func (f *fakeData) RemoveParticipant(_ context.Context, chatID, userID string) error {
	if err := f.record("RemoveParticipant"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.participants[chatID]
	for i, m := range members {
		if m == userID {
			f.participants[chatID] = append(members[:i:i], members[i+1:]...)
			break
		}
	}
	if len(f.participants[chatID]) == 0 {
		delete(f.participants, chatID)
	}
	return nil
}

func (f *fakeData) ListMessages(_ context.Context, chatID string) ([]domain.Message, error) {
	if err := f.record("ListMessages"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	gate := f.gates[chatID]
	f.mu.Unlock()
	if gate != nil {
		f.entered <- chatID
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.messages[chatID]...), nil
}

func (f *fakeData) InsertMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	if err := f.record("InsertMessage"); err != nil {
		return nil, err
	}
	out := *m
	out.ID = f.nextID("msg")
	out.CreatedAt = t0.Add(2 * time.Hour)
	f.mu.Lock()
	f.messages[m.ChatID] = append(f.messages[m.ChatID], out)
	f.mu.Unlock()
	return &out, nil
}

func (f *fakeData) UploadFile(_ context.Context, path string, _ []byte, contentType string) (domain.Attachment, error) {
	if err := f.record("UploadFile"); err != nil {
		return domain.Attachment{}, err
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, path)
	f.mu.Unlock()
	return domain.Attachment{URL: "http://files/" + path, MimeType: contentType}, nil
}

func (f *fakeData) Subscribe(context.Context, string, ...string) (Stream, error) {
	if err := f.record("Subscribe"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stream == nil {
		f.stream = newFakeStream()
	}
	return f.stream, nil
}

type fakeStream struct {
	events chan domain.ChangeEvent
	once   gosync.Once
	mu     gosync.Mutex
	closes int
}

func newFakeStream() *fakeStream {
	return &fakeStream{events: make(chan domain.ChangeEvent, 16)}
}

func (s *fakeStream) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	s.once.Do(func() { close(s.events) })
	return nil
}

func (s *fakeStream) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type note struct {
	msg string
	err error
}

// recorder is a Notifier that keeps every notification.
type recorder struct {
	mu    gosync.Mutex
	notes []note
}

func (r *recorder) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{msg: msg})
}

func (r *recorder) Error(msg string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note{msg: msg, err: err})
}

func (r *recorder) errors() []note {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []note
	for _, n := range r.notes {
		if n.err != nil {
			out = append(out, n)
		}
	}
	return out
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
	"github.com/kashyapanjali/periskope/internal/status"
)

// Upload is a file attached to an outgoing message.
type Upload struct {
	Name        string
	Data        []byte
	ContentType string
}

// Filters holds the chat-list filter values. Each dimension is queried on
// its own; the list shows the result of the most recently applied one.
type Filters struct {
	Search     string
	LabelID    string
	AssigneeID string
}

// Synchronizer keeps one signed-in session's view of chats, the active
// chat and its messages consistent with the backend.
type Synchronizer struct {
	data    DataAccess
	notify  Notifier
	bus     *bus.Bus
	log     *zap.Logger
	status  *status.Machine
	creator *ChatCreator

	mu       gosync.Mutex
	me       *domain.User
	chats    []domain.Chat
	active   *domain.Chat
	messages []domain.Message
	seen     map[string]bool
	labels   []domain.Label
	users    []domain.User
	filters  Filters
	loadSeq  uint64
	chatSeq  uint64
	engine   *Engine
	closed   bool
}

// New creates a Synchronizer. A nil notifier discards notifications and a
// nil bus disables state events.
func New(data DataAccess, n Notifier, b *bus.Bus, log *zap.Logger) *Synchronizer {
	log = logging.OrNop(log)
	if n == nil {
		n = discard{}
	}
	return &Synchronizer{
		data:    data,
		notify:  n,
		bus:     b,
		log:     log,
		status:  status.NewMachine(b),
		creator: NewChatCreator(data, log),
		seen:    map[string]bool{},
	}
}

type discard struct{}

func (discard) Info(string)         {}
func (discard) Error(string, error) {}

// Bootstrap starts the session: it resolves the signed-in identity, makes
// sure a profile row exists, loads chats and the directory caches, selects
// the first chat and opens the live message feed.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if err := s.status.Transition(status.Authenticating); err != nil {
		return err
	}

	ident, err := s.data.CurrentIdentity(ctx)
	if err != nil || ident == nil {
		s.transition(status.Unauthenticated)
		if err != nil {
			return errors.Join(ErrUnauthenticated, err)
		}
		return ErrUnauthenticated
	}

	me, err := s.EnsureUserProfile(ctx, ident)
	if err != nil {
		s.notify.Error("Could not load your profile", err)
		s.transition(status.Unauthenticated)
		return err
	}
	s.mu.Lock()
	s.me = me
	s.mu.Unlock()
	s.log.Info("session started", zap.String("user", me.ID))

	if err := s.ReloadChats(ctx); err == nil {
		if chats := s.Chats(); len(chats) > 0 {
			_ = s.SelectChat(ctx, chats[0])
		}
	}
	s.ReloadDirectory(ctx)

	if err := s.Start(ctx); err != nil {
		s.notify.Error("Live updates unavailable", err)
	}
	s.settle()
	return nil
}

// EnsureUserProfile returns the profile row for ident, inserting one named
// after the identity when it does not exist yet.
func (s *Synchronizer) EnsureUserProfile(ctx context.Context, ident *domain.Identity) (*domain.User, error) {
	u, err := s.data.GetUser(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u != nil {
		return u, nil
	}

	name := ident.Metadata.FullName
	if name == "" {
		name = domain.EmailLocalPart(ident.Email)
	}
	profile := &domain.User{ID: ident.ID, Email: ident.Email, FullName: name}
	if phone := ident.Metadata.PhoneNumber; phone != "" {
		profile.PhoneNumber = &phone
	}
	u, err = s.data.InsertUser(ctx, profile)
	if errors.Is(err, client.ErrConflict) {
		// Another session created it first.
		if u, err = s.data.GetUser(ctx, ident.ID); err == nil && u == nil {
			err = client.ErrNotFound
		}
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Start opens the message-insert feed. Only the first successful call
// subscribes; later calls are no-ops.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.engine != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	stream, err := s.data.Subscribe(ctx, domain.TableMessages, domain.ChangeInsert)
	if err != nil {
		return fmt.Errorf("subscribe messages: %w", err)
	}
	e := NewEngine(stream, s, s.log)

	s.mu.Lock()
	if s.closed || s.engine != nil {
		s.mu.Unlock()
		_ = stream.Close()
		return nil
	}
	s.engine = e
	s.mu.Unlock()

	e.Start(context.WithoutCancel(ctx))
	return nil
}

// SelectChat makes chat active and reloads its messages. On a failed load
// the chat stays active with no messages. A load that completes after a
// newer selection is discarded.
func (s *Synchronizer) SelectChat(ctx context.Context, chat domain.Chat) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.loadSeq++
	seq := s.loadSeq
	s.active = &chat
	s.messages = nil
	s.seen = map[string]bool{}
	s.mu.Unlock()

	s.transition(status.AuthenticatedActive)
	s.publishMessages()

	msgs, err := s.data.ListMessages(ctx, chat.ID)

	s.mu.Lock()
	if seq != s.loadSeq || s.closed {
		s.mu.Unlock()
		s.log.Debug("discarding superseded message load", zap.String("chat", chat.ID))
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		s.notify.Error("Could not load messages", err)
		return nil
	}
	// Messages pushed while the load was in flight are kept.
	merged, seen := mergeMessages(msgs, s.messages)
	s.messages = merged
	s.seen = seen
	s.mu.Unlock()

	s.publishMessages()
	return nil
}

func mergeMessages(loaded, pushed []domain.Message) ([]domain.Message, map[string]bool) {
	seen := make(map[string]bool, len(loaded)+len(pushed))
	out := make([]domain.Message, 0, len(loaded)+len(pushed))
	for _, m := range loaded {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	domain.SortMessagesByCreation(out)
	for _, m := range pushed {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = domain.InsertMessageSorted(out, m)
	}
	return out, seen
}

// SendMessage posts content (and optionally a file) to the active chat.
// Without an active chat, or with blank content and no file, it does nothing
// and returns nil, nil. The message is not added locally; it arrives through
// the feed.
func (s *Synchronizer) SendMessage(ctx context.Context, content string, up *Upload) (*domain.Message, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	var chatID, senderID string
	if s.active != nil {
		chatID = s.active.ID
	}
	if s.me != nil {
		senderID = s.me.ID
	}
	s.mu.Unlock()

	if chatID == "" || (strings.TrimSpace(content) == "" && up == nil) {
		return nil, nil
	}

	msg := &domain.Message{ChatID: chatID, SenderID: senderID, Content: content}
	if up != nil {
		att, err := s.upload(ctx, chatID, up)
		if err != nil {
			s.notify.Error("Could not upload file", err)
			return nil, err
		}
		msg.AttachmentURL = &att.URL
		msg.AttachmentType = &att.MimeType
	}

	saved, err := s.data.InsertMessage(ctx, msg)
	if err != nil {
		s.notify.Error("Could not send message", err)
		return nil, fmt.Errorf("send message: %w", err)
	}

	at := saved.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	update := domain.ChatUpdate{LastMessage: &content, LastActivityAt: &at}
	if err := s.data.UpdateChat(ctx, chatID, update); err != nil {
		s.log.Warn("chat last message not updated", zap.String("chat", chatID), zap.Error(err))
	}
	return saved, nil
}

func (s *Synchronizer) upload(ctx context.Context, chatID string, up *Upload) (domain.Attachment, error) {
	ext := strings.ToLower(filepath.Ext(up.Name))
	path := chatID + "/" + uuid.NewString() + ext
	ctype := up.ContentType
	if ctype == "" {
		ctype = mime.TypeByExtension(ext)
	}
	att, err := s.data.UploadFile(ctx, path, up.Data, ctype)
	if err != nil {
		return domain.Attachment{}, &UploadError{Path: path, Err: err}
	}
	return att, nil
}

// HandleIncomingMessage applies a message insert from the feed. Messages for
// the active chat are added in creation order, once per id. The chat list
// entry is updated for every chat.
func (s *Synchronizer) HandleIncomingMessage(ctx context.Context, msg domain.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wanted := s.active != nil && s.active.ID == msg.ChatID && !s.seen[msg.ID]
	s.mu.Unlock()

	if wanted && msg.Sender == nil {
		sender, err := s.data.GetUser(ctx, msg.SenderID)
		if err != nil {
			s.log.Debug("sender lookup failed", zap.String("sender", msg.SenderID), zap.Error(err))
		}
		msg.Sender = sender
	}

	s.mu.Lock()
	messagesChanged := false
	if s.active != nil && s.active.ID == msg.ChatID && !s.seen[msg.ID] {
		s.messages = domain.InsertMessageSorted(slices.Clone(s.messages), msg)
		s.seen[msg.ID] = true
		messagesChanged = true
	}
	chatsChanged := s.touchChat(msg)
	s.mu.Unlock()

	if messagesChanged {
		s.publishMessages()
	}
	if chatsChanged {
		s.publishChats()
	}
}

// touchChat moves the chat entry for msg forward. Older messages never
// move it back. Callers hold s.mu.
func (s *Synchronizer) touchChat(msg domain.Message) bool {
	i := slices.IndexFunc(s.chats, func(c domain.Chat) bool { return c.ID == msg.ChatID })
	if i < 0 || msg.CreatedAt.Before(s.chats[i].LastActivityAt) {
		return false
	}
	content := msg.Content
	chats := slices.Clone(s.chats)
	chats[i].LastMessage = &content
	chats[i].LastActivityAt = msg.CreatedAt
	domain.SortChatsByActivity(chats)
	s.chats = chats

	if s.active != nil && s.active.ID == msg.ChatID {
		active := *s.active
		active.LastMessage = &content
		active.LastActivityAt = msg.CreatedAt
		s.active = &active
	}
	return true
}

// ApplyFilters applies each dimension of f that differs from the current
// filters, in the order search, label, assignee.
func (s *Synchronizer) ApplyFilters(ctx context.Context, f Filters) error {
	cur := s.Filters()
	if f.Search != cur.Search {
		if err := s.Search(ctx, f.Search); err != nil {
			return err
		}
	}
	if f.LabelID != cur.LabelID {
		if err := s.FilterByLabel(ctx, f.LabelID); err != nil {
			return err
		}
	}
	if f.AssigneeID != cur.AssigneeID {
		if err := s.FilterByAssignee(ctx, f.AssigneeID); err != nil {
			return err
		}
	}
	return nil
}

// Search replaces the chat list with chats whose name contains text.
func (s *Synchronizer) Search(ctx context.Context, text string) error {
	return s.filter(ctx, func(f *Filters) { f.Search = text }, client.ChatFilter{Search: text})
}

// FilterByLabel replaces the chat list with chats carrying labelID. An empty
// id lists every chat.
func (s *Synchronizer) FilterByLabel(ctx context.Context, labelID string) error {
	return s.filter(ctx, func(f *Filters) { f.LabelID = labelID }, client.ChatFilter{LabelID: labelID})
}

// FilterByAssignee replaces the chat list with chats assigned to userID. An
// empty id lists every chat.
func (s *Synchronizer) FilterByAssignee(ctx context.Context, userID string) error {
	return s.filter(ctx, func(f *Filters) { f.AssigneeID = userID }, client.ChatFilter{AssignedTo: userID})
}

// ReloadChats clears the filters and reloads the full chat list.
func (s *Synchronizer) ReloadChats(ctx context.Context) error {
	return s.filter(ctx, func(f *Filters) { *f = Filters{} }, client.ChatFilter{})
}

func (s *Synchronizer) filter(ctx context.Context, set func(*Filters), q client.ChatFilter) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	next := s.filters
	set(&next)
	s.chatSeq++
	seq := s.chatSeq
	s.mu.Unlock()

	chats, err := s.data.ListChats(ctx, q)
	if err == nil {
		domain.SortChatsByActivity(chats)
	}

	s.mu.Lock()
	if seq != s.chatSeq || s.closed {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		s.notify.Error("Could not load chats", err)
		return fmt.Errorf("list chats: %w", err)
	}
	s.filters = next
	s.chats = chats
	s.mu.Unlock()

	s.publishChats()
	s.settle()
	return nil
}

// ReloadDirectory refreshes the label and user caches. Failures are
// notified and leave the previous cache in place.
func (s *Synchronizer) ReloadDirectory(ctx context.Context) {
	if labels, err := s.data.ListLabels(ctx); err != nil {
		s.notify.Error("Could not load labels", err)
	} else {
		s.mu.Lock()
		s.labels = labels
		s.mu.Unlock()
	}
	if users, err := s.data.ListUsers(ctx); err != nil {
		s.notify.Error("Could not load users", err)
	} else {
		s.mu.Lock()
		s.users = users
		s.mu.Unlock()
	}
}

// CreateChat creates a chat with the current user and participantIDs as
// members, reloads the chat list and selects the new chat.
func (s *Synchronizer) CreateChat(ctx context.Context, name string, participantIDs []string) (*domain.Chat, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	me := s.me
	s.mu.Unlock()
	if me == nil {
		return nil, ErrUnauthenticated
	}

	chat, err := s.creator.Create(ctx, me.ID, name, participantIDs)
	if err != nil {
		s.notify.Error("Could not create chat", err)
		return nil, err
	}

	selected := *chat
	if err := s.ReloadChats(ctx); err == nil {
		for _, c := range s.Chats() {
			if c.ID == chat.ID {
				selected = c
				break
			}
		}
	}
	_ = s.SelectChat(ctx, selected)
	s.notify.Info("Chat created")
	return &selected, nil
}

// Logout closes the message feed, signs out and ends the session. Only the
// first call has any effect.
func (s *Synchronizer) Logout(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	e := s.engine
	s.mu.Unlock()

	if e != nil {
		e.Stop()
	}
	err := s.data.SignOut(ctx)

	s.mu.Lock()
	s.me = nil
	s.chats = nil
	s.active = nil
	s.messages = nil
	s.seen = map[string]bool{}
	s.mu.Unlock()

	s.transition(status.Closed)
	s.publishChats()
	s.publishMessages()
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	s.log.Info("session closed")
	return nil
}

// Close ends the session without signing out: the message feed is closed
// and later operations return ErrSessionClosed.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	e := s.engine
	s.mu.Unlock()

	if e != nil {
		e.Stop()
	}
	s.transition(status.Closed)
}

// State returns the session state.
func (s *Synchronizer) State() status.State {
	return s.status.Current()
}

// Chats returns a copy of the chat list, most recent activity first.
func (s *Synchronizer) Chats() []domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.chats)
}

// Messages returns a copy of the active chat's messages, oldest first.
func (s *Synchronizer) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// ActiveChat returns the active chat, or nil.
func (s *Synchronizer) ActiveChat() *domain.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	c := *s.active
	return &c
}

func (s *Synchronizer) Labels() []domain.Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.labels)
}

func (s *Synchronizer) Users() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users)
}

// CurrentUser returns the signed-in user's profile, or nil.
func (s *Synchronizer) CurrentUser() *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.me == nil {
		return nil
	}
	u := *s.me
	return &u
}

func (s *Synchronizer) Filters() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

func (s *Synchronizer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// settle moves an authenticated session to the sub-state matching its contents.
func (s *Synchronizer) settle() {
	cur := s.status.Current()
	if !cur.Authenticated() && cur != status.Authenticating {
		return
	}
	s.mu.Lock()
	to := status.ForContents(len(s.chats) > 0, s.active != nil)
	s.mu.Unlock()
	s.transition(to)
}

func (s *Synchronizer) transition(to status.State) {
	if err := s.status.Transition(to); err != nil {
		s.log.Debug("state transition skipped", zap.Error(err))
	}
}

func (s *Synchronizer) publishChats() {
	s.bus.Publish(bus.Event{Kind: bus.KindChatsChanged, Payload: s.Chats()})
}

func (s *Synchronizer) publishMessages() {
	s.bus.Publish(bus.Event{Kind: bus.KindMessages, Payload: s.Messages()})
}

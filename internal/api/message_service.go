package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/store"
)

// MessageService serves chat messages.
type MessageService struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger
}

// NewMessageService creates a new message service backed by the store.
func NewMessageService(db *store.DB, b *bus.Bus, log *zap.Logger) *MessageService {
	return &MessageService{db: db, bus: b, log: log}
}

type insertMessageRequest struct {
	ChatID         string  `json:"chat_id"`
	Content        string  `json:"content"`
	AttachmentURL  *string `json:"attachment_url,omitempty"`
	AttachmentType *string `json:"attachment_type,omitempty"`
}

func (s *MessageService) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID := mux.Vars(r)["id"]
	if !s.member(w, r, chatID) {
		return
	}
	msgs, err := s.db.ListMessages(chatID)
	if err != nil {
		writeStoreError(w, s.log, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// InsertMessage stores a message sent by the caller and announces it on
// the realtime feed without the resolved sender.
func (s *MessageService) InsertMessage(w http.ResponseWriter, r *http.Request) {
	var req insertMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" && req.AttachmentURL == nil {
		writeError(w, http.StatusBadRequest, "content or attachment is required")
		return
	}
	if !s.member(w, r, req.ChatID) {
		return
	}

	m := domain.Message{
		ChatID:         req.ChatID,
		SenderID:       callerFrom(r.Context()).Identity.ID,
		Content:        req.Content,
		AttachmentURL:  req.AttachmentURL,
		AttachmentType: req.AttachmentType,
	}
	if err := s.db.InsertMessage(&m); err != nil {
		writeStoreError(w, s.log, "insert message", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeInsert, domain.TableMessages, m)

	sender, err := s.db.GetUser(m.SenderID)
	if err != nil {
		s.log.Warn("resolve sender", zap.String("sender", m.SenderID), zap.Error(err))
	}
	m.Sender = sender
	writeJSON(w, http.StatusCreated, m)
}

func (s *MessageService) member(w http.ResponseWriter, r *http.Request, chatID string) bool {
	ok, err := s.db.IsParticipant(chatID, callerFrom(r.Context()).Identity.ID)
	if err != nil {
		writeStoreError(w, s.log, "check membership", err)
		return false
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant of this chat")
		return false
	}
	return true
}

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

// ChatService serves chats and their membership. Only participants can
// read or update a chat; only its creator can delete it.
type ChatService struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger
}

// NewChatService creates a new chat service backed by the store.
func NewChatService(db *store.DB, b *bus.Bus, log *zap.Logger) *ChatService {
	return &ChatService{db: db, bus: b, log: log}
}

type createChatRequest struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	LabelID    *string `json:"label_id,omitempty"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

type participantRequest struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

func (s *ChatService) ListChats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ChatFilter{
		Search:     q.Get("search"),
		LabelID:    q.Get("label_id"),
		AssignedTo: q.Get("assigned_to"),
	}
	chats, err := s.db.ListChatsForUser(callerFrom(r.Context()).Identity.ID, filter)
	if err != nil {
		writeStoreError(w, s.log, "list chats", err)
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *ChatService) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	c := domain.Chat{
		ID:         req.ID,
		Name:       strings.TrimSpace(req.Name),
		LabelID:    req.LabelID,
		AssignedTo: req.AssignedTo,
		CreatedBy:  callerFrom(r.Context()).Identity.ID,
	}
	if err := s.db.InsertChat(&c); err != nil {
		writeStoreError(w, s.log, "insert chat", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeInsert, domain.TableChats, c)
	writeJSON(w, http.StatusCreated, c)
}

func (s *ChatService) GetChat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.visibleChat(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *ChatService) UpdateChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.visibleChat(w, r, id); !ok {
		return
	}
	var u domain.ChatUpdate
	if !decodeJSON(w, r, &u) {
		return
	}
	if err := s.db.UpdateChat(id, u); err != nil {
		writeStoreError(w, s.log, "update chat", err)
		return
	}
	c, err := s.db.GetChat(id)
	if err != nil || c == nil {
		writeStoreError(w, s.log, "reload chat", orNotFound(err))
		return
	}
	publishRow(s.bus, s.log, domain.ChangeUpdate, domain.TableChats, c)
	writeJSON(w, http.StatusOK, c)
}

func (s *ChatService) DeleteChat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	c, err := s.db.GetChat(id)
	if err != nil || c == nil {
		writeStoreError(w, s.log, "get chat", orNotFound(err))
		return
	}
	if c.CreatedBy != callerFrom(r.Context()).Identity.ID {
		writeError(w, http.StatusForbidden, "only the chat creator can delete it")
		return
	}
	if err := s.db.DeleteChat(id); err != nil {
		writeStoreError(w, s.log, "delete chat", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeDelete, domain.TableChats, map[string]string{"id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (s *ChatService) ListParticipants(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := s.managedChat(w, r, id); !ok {
		return
	}
	parts, err := s.db.ListParticipants(id)
	if err != nil {
		writeStoreError(w, s.log, "list participants", err)
		return
	}
	if parts == nil {
		parts = []domain.Participant{}
	}
	writeJSON(w, http.StatusOK, parts)
}

func (s *ChatService) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChatID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "chat_id and user_id are required")
		return
	}
	if _, ok := s.managedChat(w, r, req.ChatID); !ok {
		return
	}
	p := domain.Participant{ChatID: req.ChatID, UserID: req.UserID}
	if err := s.db.AddParticipant(&p); err != nil {
		writeStoreError(w, s.log, "add participant", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeInsert, domain.TableParticipants, p)
	writeJSON(w, http.StatusCreated, p)
}

func (s *ChatService) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chatID, userID := vars["chat"], vars["user"]
	if _, ok := s.managedChat(w, r, chatID); !ok {
		return
	}
	if err := s.db.RemoveParticipant(chatID, userID); err != nil {
		writeStoreError(w, s.log, "remove participant", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeDelete, domain.TableParticipants, domain.Participant{ChatID: chatID, UserID: userID})
	w.WriteHeader(http.StatusNoContent)
}

// visibleChat loads a chat the caller participates in. Chats the caller
// cannot see are reported as missing.
func (s *ChatService) visibleChat(w http.ResponseWriter, r *http.Request, id string) (*domain.Chat, bool) {
	c, err := s.db.GetChat(id)
	if err != nil {
		writeStoreError(w, s.log, "get chat", err)
		return nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	member, err := s.db.IsParticipant(id, callerFrom(r.Context()).Identity.ID)
	if err != nil {
		writeStoreError(w, s.log, "check membership", err)
		return nil, false
	}
	if !member {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	return c, true
}

// managedChat loads a chat whose membership the caller may change: its
// creator or any participant.
func (s *ChatService) managedChat(w http.ResponseWriter, r *http.Request, id string) (*domain.Chat, bool) {
	c, err := s.db.GetChat(id)
	if err != nil {
		writeStoreError(w, s.log, "get chat", err)
		return nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	caller := callerFrom(r.Context()).Identity.ID
	if c.CreatedBy == caller {
		return c, true
	}
	member, err := s.db.IsParticipant(id, caller)
	if err != nil {
		writeStoreError(w, s.log, "check membership", err)
		return nil, false
	}
	if !member {
		writeError(w, http.StatusNotFound, "chat not found")
		return nil, false
	}
	return c, true
}

func orNotFound(err error) error {
	if err == nil {
		return store.ErrNotFound
	}
	return err
}

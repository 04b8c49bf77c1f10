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

// UserService serves the user directory and labels.
type UserService struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger
}

// NewUserService creates the directory handlers.
func NewUserService(db *store.DB, b *bus.Bus, log *zap.Logger) *UserService {
	return &UserService{db: db, bus: b, log: log}
}

func (s *UserService) ListUsers(w http.ResponseWriter, _ *http.Request) {
	users, err := s.db.ListUsers()
	if err != nil {
		writeStoreError(w, s.log, "list users", err)
		return
	}
	if users == nil {
		users = []domain.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.db.GetUser(mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, s.log, "get user", err)
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *UserService) InsertUser(w http.ResponseWriter, r *http.Request) {
	var u domain.User
	if !decodeJSON(w, r, &u) {
		return
	}
	u.Email = strings.TrimSpace(u.Email)
	if u.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	if err := s.db.InsertUser(&u); err != nil {
		writeStoreError(w, s.log, "insert user", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeInsert, domain.TableUsers, u)
	writeJSON(w, http.StatusCreated, u)
}

func (s *UserService) ListLabels(w http.ResponseWriter, _ *http.Request) {
	labels, err := s.db.ListLabels()
	if err != nil {
		writeStoreError(w, s.log, "list labels", err)
		return
	}
	if labels == nil {
		labels = []domain.Label{}
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *UserService) InsertLabel(w http.ResponseWriter, r *http.Request) {
	var l domain.Label
	if !decodeJSON(w, r, &l) {
		return
	}
	if strings.TrimSpace(l.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.db.InsertLabel(&l); err != nil {
		writeStoreError(w, s.log, "insert label", err)
		return
	}
	publishRow(s.bus, s.log, domain.ChangeInsert, domain.TableLabels, l)
	writeJSON(w, http.StatusCreated, l)
}

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/blob"
	"github.com/kashyapanjali/periskope/internal/store"
)

// StorageService serves the attachments bucket. Uploads need a token and
// membership of the chat named by the key's first segment; downloads are
// public so message attachment URLs can be opened directly.
type StorageService struct {
	db    *store.DB
	blobs *blob.Store
	log   *zap.Logger
}

// NewStorageService creates the attachment handlers.
func NewStorageService(db *store.DB, b *blob.Store, log *zap.Logger) *StorageService {
	return &StorageService{db: db, blobs: b, log: log}
}

func (s *StorageService) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, blob.MaxObjectSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(data) > blob.MaxObjectSize {
		writeError(w, http.StatusRequestEntityTooLarge, "attachment too large")
		return
	}
	key, err := blob.Clean(mux.Vars(r)["path"])
	if err != nil || !strings.Contains(key, "/") {
		writeError(w, http.StatusBadRequest, blob.ErrInvalidPath.Error())
		return
	}
	ok, err := s.db.IsParticipant(blob.Owner(key), callerFrom(r.Context()).Identity.ID)
	if err != nil {
		writeStoreError(w, s.log, "check membership", err)
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "not a participant of this chat")
		return
	}

	att, err := s.blobs.Put(key, data, r.Header.Get("Content-Type"))
	switch {
	case errors.Is(err, blob.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, blob.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("store attachment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Debug("attachment stored", zap.String("url", att.URL), zap.Int("bytes", len(data)))
	writeJSON(w, http.StatusCreated, att)
}

func (s *StorageService) Download(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["path"]
	rc, ctype, err := s.blobs.Open(key)
	switch {
	case errors.Is(err, blob.ErrInvalidPath):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, blob.ErrNotFound):
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	case err != nil:
		s.log.Error("open attachment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer func() { _ = rc.Close() }()
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if blob.Inline(ctype) {
		w.Header().Set("Content-Type", ctype)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", "attachment")
	}
	http.ServeContent(w, r, key, time.Time{}, rc)
}

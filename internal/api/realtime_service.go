package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/store"
)

var realtimeTables = []string{
	domain.TableMessages,
	domain.TableChats,
	domain.TableParticipants,
	domain.TableUsers,
	domain.TableLabels,
}

// RealtimeService streams row changes over websockets. Chat-scoped rows
// are delivered only to participants of that chat.
type RealtimeService struct {
	db       *store.DB
	bus      *bus.Bus
	log      *zap.Logger
	upgrader websocket.Upgrader
	active   atomic.Int64

	closing   chan struct{}
	closeOnce sync.Once
}

// NewRealtimeService creates the websocket feed. Browser origins must be in
// allowedOrigins; clients that send no Origin header are always accepted.
func NewRealtimeService(db *store.DB, b *bus.Bus, log *zap.Logger, allowedOrigins []string) *RealtimeService {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &RealtimeService{
		db:      db,
		bus:     b,
		log:     log,
		closing: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Active returns the number of open realtime connections.
func (s *RealtimeService) Active() int64 {
	return s.active.Load()
}

// Close disconnects every subscriber. Later subscriptions are refused.
func (s *RealtimeService) Close() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Subscribe handles GET /realtime?table=messages&events=INSERT,UPDATE.
func (s *RealtimeService) Subscribe(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	table := q.Get("table")
	if table == "" {
		table = domain.TableMessages
	}
	if !slices.Contains(realtimeTables, table) {
		writeError(w, http.StatusBadRequest, "unknown table "+table)
		return
	}
	kinds, err := parseEventKinds(q.Get("events"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	select {
	case <-s.closing:
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	default:
	}

	caller := callerFrom(r.Context()).Identity.ID
	// Subscribed before the handshake completes so rows written right after
	// the client's dial returns are not missed.
	events, cancel := s.bus.Subscribe(bus.RowNamespace(table), 256)
	defer cancel()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newConnection(caller, ws)
	conn.start()
	s.active.Add(1)
	defer s.active.Add(-1)
	s.log.Info("realtime subscriber connected",
		zap.String("conn", conn.id), zap.String("user", caller), zap.String("table", table))

	for {
		select {
		case <-conn.done():
			s.log.Info("realtime subscriber disconnected", zap.String("conn", conn.id))
			return
		case <-s.closing:
			conn.shutdown(websocket.CloseGoingAway, "server shutting down")
			return
		case <-r.Context().Done():
			conn.shutdown(websocket.CloseGoingAway, "request canceled")
			return
		case evt, ok := <-events:
			if !ok {
				conn.shutdown(websocket.CloseGoingAway, "feed closed")
				return
			}
			change, ok := evt.Payload.(domain.ChangeEvent)
			if !ok || !kinds[change.Kind] || !s.visible(caller, change) {
				continue
			}
			frame, err := json.Marshal(change)
			if err != nil {
				s.log.Warn("encode realtime frame", zap.Error(err))
				continue
			}
			if err := conn.enqueue(frame); err != nil {
				s.log.Warn("realtime delivery failed", zap.String("conn", conn.id), zap.Error(err))
				return
			}
		}
	}
}

type chatScoped struct {
	ID     string `json:"id"`
	ChatID string `json:"chat_id"`
}

func (s *RealtimeService) visible(userID string, change domain.ChangeEvent) bool {
	var chatID string
	switch change.Table {
	case domain.TableUsers, domain.TableLabels:
		return true
	case domain.TableChats:
		if change.Kind == domain.ChangeDelete {
			return true
		}
		var row chatScoped
		if err := json.Unmarshal(change.Row, &row); err != nil {
			return false
		}
		chatID = row.ID
	default:
		var row chatScoped
		if err := json.Unmarshal(change.Row, &row); err != nil {
			return false
		}
		chatID = row.ChatID
	}
	ok, err := s.db.IsParticipant(chatID, userID)
	if err != nil {
		s.log.Warn("realtime membership check", zap.Error(err))
		return false
	}
	return ok
}

func parseEventKinds(raw string) (map[string]bool, error) {
	all := map[string]bool{domain.ChangeInsert: true, domain.ChangeUpdate: true, domain.ChangeDelete: true}
	if raw == "" || raw == "*" {
		return all, nil
	}
	kinds := make(map[string]bool)
	for _, k := range strings.Split(raw, ",") {
		k = strings.ToUpper(strings.TrimSpace(k))
		if !all[k] {
			return nil, &unknownEventError{kind: k}
		}
		kinds[k] = true
	}
	return kinds, nil
}

type unknownEventError struct{ kind string }

func (e *unknownEventError) Error() string { return "unknown event kind " + e.kind }

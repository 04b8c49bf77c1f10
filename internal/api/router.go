package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/auth"
	"github.com/kashyapanjali/periskope/internal/store"
)

// Services groups every handler set mounted by NewHandler.
type Services struct {
	Auth     *auth.Service
	Session  *SessionService
	Users    *UserService
	Chats    *ChatService
	Messages *MessageService
	Storage  *StorageService
	Realtime *RealtimeService
	DB       *store.DB
	Log      *zap.Logger
}

// NewRouter mounts all routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()
	requireAuth := RequireAuth(s.Auth)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	authR := r.PathPrefix("/auth").Subrouter()
	authR.HandleFunc("/signup", s.Session.SignUp).Methods(http.MethodPost)
	authR.HandleFunc("/token", s.Session.Token).Methods(http.MethodPost)
	authR.Handle("/user", requireAuth(http.HandlerFunc(s.Session.User))).Methods(http.MethodGet)
	authR.Handle("/logout", requireAuth(http.HandlerFunc(s.Session.Logout))).Methods(http.MethodPost)

	rest := r.PathPrefix("/rest").Subrouter()
	rest.Use(requireAuth)
	rest.HandleFunc("/users", s.Users.ListUsers).Methods(http.MethodGet)
	rest.HandleFunc("/users", s.Users.InsertUser).Methods(http.MethodPost)
	rest.HandleFunc("/users/{id}", s.Users.GetUser).Methods(http.MethodGet)
	rest.HandleFunc("/labels", s.Users.ListLabels).Methods(http.MethodGet)
	rest.HandleFunc("/labels", s.Users.InsertLabel).Methods(http.MethodPost)
	rest.HandleFunc("/chats", s.Chats.ListChats).Methods(http.MethodGet)
	rest.HandleFunc("/chats", s.Chats.CreateChat).Methods(http.MethodPost)
	rest.HandleFunc("/chats/{id}", s.Chats.GetChat).Methods(http.MethodGet)
	rest.HandleFunc("/chats/{id}", s.Chats.UpdateChat).Methods(http.MethodPatch)
	rest.HandleFunc("/chats/{id}", s.Chats.DeleteChat).Methods(http.MethodDelete)
	rest.HandleFunc("/chats/{id}/participants", s.Chats.ListParticipants).Methods(http.MethodGet)
	rest.HandleFunc("/chats/{id}/messages", s.Messages.ListMessages).Methods(http.MethodGet)
	rest.HandleFunc("/chat_participants", s.Chats.AddParticipant).Methods(http.MethodPost)
	rest.HandleFunc("/chat_participants/{chat}/{user}", s.Chats.RemoveParticipant).Methods(http.MethodDelete)
	rest.HandleFunc("/messages", s.Messages.InsertMessage).Methods(http.MethodPost)

	r.Handle("/storage/attachments/{path:.+}", requireAuth(http.HandlerFunc(s.Storage.Upload))).Methods(http.MethodPut)
	r.HandleFunc("/storage/attachments/{path:.+}", s.Storage.Download).Methods(http.MethodGet, http.MethodHead)

	r.Handle("/realtime", requireAuth(http.HandlerFunc(s.Realtime.Subscribe))).Methods(http.MethodGet)

	return r
}

// NewHandler wraps the router with CORS for the allowed browser origins.
func NewHandler(s Services, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "Retry-After"},
		MaxAge:           300,
		AllowCredentials: true,
	})
	return c.Handler(NewRouter(s))
}

// HealthResponse reports daemon liveness and row counts.
type HealthResponse struct {
	Status          string      `json:"status"`
	Stats           store.Stats `json:"stats"`
	RealtimeClients int64       `json:"realtime_clients"`
}

func (s Services) health(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.DB.Counts()
	if err != nil {
		writeStoreError(w, s.Log, "health counts", err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Stats: stats, RealtimeClients: s.Realtime.Active()})
}

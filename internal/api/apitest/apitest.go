// Package apitest runs the daemon HTTP API on an httptest server backed by
// a temporary SQLite store.
package apitest

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kashyapanjali/periskope/internal/api"
	"github.com/kashyapanjali/periskope/internal/auth"
	"github.com/kashyapanjali/periskope/internal/blob"
	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/store"
)

// Options tunes the test daemon.
type Options struct {
	// SignupBurst is the number of sign-ups allowed back to back. Zero means unlimited.
	SignupBurst int
}

// Daemon is a running test API.
type Daemon struct {
	Server   *httptest.Server
	DB       *store.DB
	Bus      *bus.Bus
	Auth     *auth.Service
	Realtime *api.RealtimeService
}

// URL returns the base URL of the test server.
func (d *Daemon) URL() string {
	return d.Server.URL
}

// New starts a test daemon that is shut down with the test.
func New(t testing.TB, opts Options) *Daemon {
	t.Helper()
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "periskope.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	log := zap.NewNop()
	b := bus.New()

	authOpts := auth.Options{Secret: "apitest-secret", BcryptCost: bcrypt.MinCost}
	if opts.SignupBurst > 0 {
		authOpts.SignupBurst = opts.SignupBurst
		authOpts.SignupInterval = 1 << 62
	}
	authSvc, err := auth.NewService(db, authOpts, log)
	if err != nil {
		t.Fatal(err)
	}

	d := &Daemon{DB: db, Bus: b, Auth: authSvc}
	d.Server = httptest.NewUnstartedServer(nil)
	base := "http://" + d.Server.Listener.Addr().String()

	blobs, err := blob.New(filepath.Join(dir, "attachments"), base+"/storage/attachments")
	if err != nil {
		t.Fatal(err)
	}
	d.Realtime = api.NewRealtimeService(db, b, log, nil)
	d.Server.Config.Handler = api.NewHandler(api.Services{
		Auth:     authSvc,
		Session:  api.NewSessionService(authSvc, log),
		Users:    api.NewUserService(db, b, log),
		Chats:    api.NewChatService(db, b, log),
		Messages: api.NewMessageService(db, b, log),
		Storage:  api.NewStorageService(db, blobs, log),
		Realtime: d.Realtime,
		DB:       db,
		Log:      log,
	}, nil)
	d.Server.Config.RegisterOnShutdown(d.Realtime.Close)
	d.Server.Start()

	t.Cleanup(func() {
		d.Realtime.Close()
		d.Server.Close()
		_ = db.Close()
	})
	return d
}

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/fx"

	"github.com/kashyapanjali/periskope/internal/api"
	"github.com/kashyapanjali/periskope/internal/config"
	"github.com/kashyapanjali/periskope/internal/lock"
)

func testParams(t *testing.T, ln net.Listener) Params {
	t.Helper()
	dir := t.TempDir()
	srv := config.Default().Server
	srv.DataDir = filepath.Join(dir, "data")
	srv.Addr = "127.0.0.1:0"
	if ln != nil {
		srv.PublicURL = "http://" + ln.Addr().String()
	}
	return Params{
		Profile:  "test",
		Server:   srv,
		LogPath:  filepath.Join(dir, "logs", "periskoped.log"),
		Listener: ln,
	}
}

func TestModuleValidates(t *testing.T) {
	if err := fx.ValidateApp(Module(testParams(t, nil))); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	p := testParams(t, ln)

	app := fx.New(Module(p), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// A second daemon on the same data dir must be refused.
	if _, err := lock.Acquire(p.Server.DataDir, ""); err == nil {
		t.Error("data dir lock not held while running")
	} else {
		var held *lock.HeldError
		if !errors.As(err, &held) {
			t.Errorf("lock error = %T, want *lock.HeldError", err)
		}
	}

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	var health api.HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	_ = resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" {
		t.Errorf("health status = %q", health.Status)
	}

	resp, err = http.Get("http://" + ln.Addr().String() + "/rest/chats")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated /rest/chats status = %d, want 401", resp.StatusCode)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	l, err := lock.Acquire(p.Server.DataDir, "")
	if err != nil {
		t.Fatalf("lock not released after stop: %v", err)
	}
	_ = l.Release()
}

func TestLoadOrCreateSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt_secret")

	first, err := loadOrCreateSecret(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 64 {
		t.Errorf("secret length = %d, want 64 hex chars", len(first))
	}
	second, err := loadOrCreateSecret(path)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("secret changed between loads")
	}
}

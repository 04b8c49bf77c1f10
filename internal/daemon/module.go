package daemon

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/api"
	"github.com/kashyapanjali/periskope/internal/auth"
	"github.com/kashyapanjali/periskope/internal/blob"
	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/config"
	"github.com/kashyapanjali/periskope/internal/lock"
	"github.com/kashyapanjali/periskope/internal/logging"
	"github.com/kashyapanjali/periskope/internal/store"
	"github.com/kashyapanjali/periskope/internal/workspace"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	Profile  string
	Server   config.ServerConfig
	Debug    bool
	LogPath  string       // optional override; empty = profile log path
	Listener net.Listener // optional pre-bound listener for testing
}

func (p Params) dataDir() string {
	if p.Server.DataDir != "" {
		return p.Server.DataDir
	}
	return workspace.DataDir(p.Profile)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideBlobs,
			provideAuth,
			api.NewSessionService,
			api.NewUserService,
			api.NewChatService,
			api.NewMessageService,
			api.NewStorageService,
			provideRealtime,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	path := p.LogPath
	if path == "" {
		path = workspace.LogPath(p.Profile, "periskoped")
	}
	return logging.New(path, "periskoped", logging.Options{Debug: p.Debug})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	dir := p.dataDir()
	logger.Info("acquiring data dir lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir, p.Server.Addr)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.DBPath(p.dataDir())
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBlobs(p Params) (*blob.Store, error) {
	base := strings.TrimRight(p.Server.PublicURL, "/") + "/storage/attachments"
	return blob.New(workspace.AttachmentsDir(p.dataDir()), base)
}

func provideAuth(p Params, db *store.DB, logger *zap.Logger) (*auth.Service, error) {
	secret := p.Server.JWTSecret
	if secret == "" {
		var err error
		secret, err = loadOrCreateSecret(filepath.Join(p.dataDir(), "jwt_secret"))
		if err != nil {
			return nil, err
		}
		logger.Info("using generated jwt secret from data dir")
	}
	return auth.NewService(db, auth.Options{
		Secret:         secret,
		TokenTTL:       p.Server.TokenTTL.Duration,
		SignupInterval: p.Server.SignupInterval.Duration,
		SignupBurst:    p.Server.SignupBurst,
	}, logger.Named("auth"))
}

func provideRealtime(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) *api.RealtimeService {
	return api.NewRealtimeService(db, b, logger.Named("realtime"), p.Server.AllowedOrigins)
}

type handlerParams struct {
	fx.In

	Params   Params
	Auth     *auth.Service
	DB       *store.DB
	Logger   *zap.Logger
	Session  *api.SessionService
	Users    *api.UserService
	Chats    *api.ChatService
	Messages *api.MessageService
	Storage  *api.StorageService
	Realtime *api.RealtimeService
}

func provideHandler(hp handlerParams) *api.Services {
	return &api.Services{
		Auth:     hp.Auth,
		Session:  hp.Session,
		Users:    hp.Users,
		Chats:    hp.Chats,
		Messages: hp.Messages,
		Storage:  hp.Storage,
		Realtime: hp.Realtime,
		DB:       hp.DB,
		Log:      hp.Logger,
	}
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped", zap.Int64("bus_dropped", b.Dropped()))
			_ = logger.Sync()
			return nil
		},
	})
}

// loadOrCreateSecret reads a hex secret from path, generating one on first use.
func loadOrCreateSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return strings.TrimSpace(string(data)), nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read jwt secret: %w", err)
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return "", fmt.Errorf("write jwt secret: %w", err)
	}
	return secret, nil
}

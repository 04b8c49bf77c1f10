// Package directory manages the user directory: adding users on behalf of
// the signed-in operator and keeping a cached user list.
package directory

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/config"
	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
)

var (
	// ErrCooldown is returned when AddUser is called again inside the cooldown window.
	ErrCooldown = errors.New("add user: try again in a moment")
	// ErrInvalidEmail rejects a malformed address.
	ErrInvalidEmail = errors.New("invalid email address")
)

// Backend is the part of the data access layer the directory uses.
type Backend interface {
	SignUp(ctx context.Context, email, password string, meta domain.IdentityMetadata) (*domain.Identity, error)
	InsertUser(ctx context.Context, u *domain.User) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
}

// Options tunes AddUser throttling and retries.
type Options struct {
	// Cooldown is the minimum gap between AddUser attempts.
	Cooldown time.Duration
	// RetryDelay is the fixed wait between identity-creation attempts.
	RetryDelay time.Duration
	// MaxRetries is the number of retries after a rate-limited first attempt.
	MaxRetries int
	// LastAttempt seeds the cooldown with an attempt made by an earlier
	// process, so one-shot commands share the window.
	LastAttempt time.Time
}

// OptionsFrom reads Options from the [directory] config section.
func OptionsFrom(cfg config.DirectoryConfig) Options {
	return Options{
		Cooldown:   cfg.Cooldown.Duration,
		RetryDelay: cfg.RetryDelay.Duration,
		MaxRetries: cfg.MaxRetries,
	}
}

// Directory adds users and caches the user list.
type Directory struct {
	backend Backend
	opts    Options
	limiter *rate.Limiter
	now     func() time.Time
	log     *zap.Logger

	mu    sync.RWMutex
	users []domain.User
	last  time.Time
}

// New creates a Directory.
func New(b Backend, opts Options, log *zap.Logger) *Directory {
	if opts.Cooldown <= 0 {
		opts.Cooldown = 2 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	d := &Directory{
		backend: b,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Cooldown), 1),
		now:     time.Now,
		log:     logging.OrNop(log),
	}
	if !opts.LastAttempt.IsZero() {
		d.limiter.AllowN(opts.LastAttempt, 1)
		d.last = opts.LastAttempt
	}
	return d
}

// LastAttempt returns when AddUser last got past the cooldown, or the
// seeded time when it has not been called.
func (d *Directory) LastAttempt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// AddUser creates an identity with a random password and a profile row for
// it, then refreshes the cached list. A call inside the cooldown window
// fails with ErrCooldown before anything is sent. Identity creation is
// retried while the backend reports a rate limit.
func (d *Directory) AddUser(ctx context.Context, email, fullName, phone string) (*domain.User, error) {
	now := d.now()
	if !d.limiter.AllowN(now, 1) {
		return nil, ErrCooldown
	}
	d.mu.Lock()
	d.last = now
	d.mu.Unlock()

	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	fullName = strings.TrimSpace(fullName)
	phone = strings.TrimSpace(phone)

	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	meta := domain.IdentityMetadata{FullName: fullName, PhoneNumber: phone}

	ident, err := retry.DoWithData(
		func() (*domain.Identity, error) {
			return d.backend.SignUp(ctx, email, password, meta)
		},
		retry.Context(ctx),
		retry.Attempts(uint(d.opts.MaxRetries+1)),
		retry.Delay(d.opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, client.ErrRateLimited)
		}),
		retry.OnRetry(func(n uint, err error) {
			d.log.Warn("sign-up rate limited, retrying",
				zap.String("email", email), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}

	profile := &domain.User{ID: ident.ID, Email: email, FullName: fullName}
	if phone != "" {
		profile.PhoneNumber = &phone
	}
	u, err := d.backend.InsertUser(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	d.log.Info("user added", zap.String("user", u.ID), zap.String("email", email))

	if _, err := d.ListUsers(ctx); err != nil {
		d.log.Warn("user list not refreshed", zap.Error(err))
	}
	return u, nil
}

// ListUsers reloads the user list from the backend and caches it.
func (d *Directory) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := d.backend.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	d.mu.Lock()
	d.users = users
	d.mu.Unlock()
	return slices.Clone(users), nil
}

// Users returns the cached user list.
func (d *Directory) Users() []domain.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.users)
}

func randomPassword() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

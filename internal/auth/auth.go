package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
	"github.com/kashyapanjali/periskope/internal/store"
)

var (
	ErrRateLimited        = errors.New("too many sign-up attempts")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidInput       = errors.New("invalid sign-up input")
)

const minPasswordLen = 6

// IdentityStore is the persistence the service needs.
type IdentityStore interface {
	CreateIdentity(ident *domain.Identity, passwordHash string) error
	GetIdentityByEmail(email string) (*domain.Identity, string, error)
	GetIdentity(id string) (*domain.Identity, error)
}

// Options configures a Service.
type Options struct {
	Secret         string
	TokenTTL       time.Duration
	SignupInterval time.Duration
	SignupBurst    int
	BcryptCost     int
}

// Claims is the access token payload. Subject is the identity id and Id the token id.
type Claims struct {
	Email string `json:"email"`
	jwt.StandardClaims
}

// Service issues and verifies access tokens.
type Service struct {
	store   IdentityStore
	secret  []byte
	ttl     time.Duration
	cost    int
	limiter *rate.Limiter
	log     *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// NewService creates an auth service.
func NewService(s IdentityStore, opts Options, log *zap.Logger) (*Service, error) {
	if opts.Secret == "" {
		return nil, errors.New("auth: empty jwt secret")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.SignupBurst <= 0 {
		opts.SignupBurst = 1
	}
	limit := rate.Inf
	if opts.SignupInterval > 0 {
		limit = rate.Every(opts.SignupInterval)
	}
	return &Service{
		store:   s,
		secret:  []byte(opts.Secret),
		ttl:     opts.TokenTTL,
		cost:    opts.BcryptCost,
		limiter: rate.NewLimiter(limit, opts.SignupBurst),
		log:     logging.OrNop(log),
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}, nil
}

// SignUp creates an identity. It returns ErrRateLimited when the sign-up
// bucket is empty, before touching the store.
func (s *Service) SignUp(email, password string, meta domain.IdentityMetadata) (*domain.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if !strings.Contains(email, "@") || len(password) < minPasswordLen {
		return nil, ErrInvalidInput
	}
	if !s.limiter.AllowN(s.now(), 1) {
		s.log.Warn("sign-up throttled", zap.String("email", email))
		return nil, ErrRateLimited
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	ident := &domain.Identity{Email: email, Metadata: meta, CreatedAt: s.now().UTC()}
	if err := s.store.CreateIdentity(ident, string(hash)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create identity: %w", err)
	}
	s.log.Info("identity created", zap.String("id", ident.ID))
	return ident, nil
}

// SignIn checks a password and issues an access token.
func (s *Service) SignIn(email, password string) (string, *domain.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	ident, hash, err := s.store.GetIdentityByEmail(email)
	if err != nil {
		return "", nil, fmt.Errorf("lookup identity: %w", err)
	}
	if ident == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.Issue(ident)
	if err != nil {
		return "", nil, err
	}
	return token, ident, nil
}

// Issue signs a fresh access token for ident.
func (s *Service) Issue(ident *domain.Identity) (string, error) {
	now := s.now()
	claims := Claims{
		Email: ident.Email,
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.NewString(),
			Subject:   ident.ID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and checks signature, expiry and revocation.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if s.isRevoked(claims.Id) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a token to its identity.
func (s *Service) Authenticate(token string) (*domain.Identity, *Claims, error) {
	claims, err := s.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	ident, err := s.store.GetIdentity(claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup identity: %w", err)
	}
	if ident == nil {
		return nil, nil, ErrInvalidToken
	}
	return ident, claims, nil
}

// Revoke invalidates a token id until its natural expiry.
func (s *Service) Revoke(claims *Claims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.Id] = time.Unix(claims.ExpiresAt, 0)
}

func (s *Service) isRevoked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[id]
	return ok
}

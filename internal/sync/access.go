package sync

import (
	"context"

	"github.com/kashyapanjali/periskope/internal/client"
	"github.com/kashyapanjali/periskope/internal/domain"
)

// DataAccess is the backend the Synchronizer reads and writes through.
// Single-row lookups return nil, nil when the row does not exist.
type DataAccess interface {
	CurrentIdentity(ctx context.Context) (*domain.Identity, error)
	SignOut(ctx context.Context) error

	GetUser(ctx context.Context, id string) (*domain.User, error)
	InsertUser(ctx context.Context, u *domain.User) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListLabels(ctx context.Context) ([]domain.Label, error)

	ListChats(ctx context.Context, f client.ChatFilter) ([]domain.Chat, error)
	InsertChat(ctx context.Context, c *domain.Chat) (*domain.Chat, error)
	UpdateChat(ctx context.Context, id string, u domain.ChatUpdate) error
	DeleteChat(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, chatID, userID string) error
	RemoveParticipant(ctx context.Context, chatID, userID string) error

	ListMessages(ctx context.Context, chatID string) ([]domain.Message, error)
	InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	UploadFile(ctx context.Context, path string, data []byte, contentType string) (domain.Attachment, error)

	Subscribe(ctx context.Context, table string, kinds ...string) (Stream, error)
}

// Stream is a live row-change feed. Events is closed when the feed ends.
type Stream interface {
	Events() <-chan domain.ChangeEvent
	Close() error
}

// Notifier surfaces outcomes to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string, err error)
}

// ClientAccess adapts the daemon HTTP client to DataAccess.
type ClientAccess struct {
	*client.Client
}

// Subscribe opens the realtime feed.
func (a ClientAccess) Subscribe(ctx context.Context, table string, kinds ...string) (Stream, error) {
	s, err := a.Client.Subscribe(ctx, table, kinds...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

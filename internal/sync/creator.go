package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
)

// ChatCreator creates a chat and its memberships without leaving a partial
// chat behind: when a participant insert fails, the inserted memberships and
// the chat row are deleted again.
type ChatCreator struct {
	data DataAccess
	log  *zap.Logger
}

// NewChatCreator creates a ChatCreator.
func NewChatCreator(data DataAccess, log *zap.Logger) *ChatCreator {
	return &ChatCreator{data: data, log: logging.OrNop(log)}
}

// Members returns the participant list for a new chat: the creator first,
// then the requested users, without blanks or duplicates.
func Members(creatorID string, participantIDs []string) []string {
	seen := map[string]bool{creatorID: true}
	out := []string{creatorID}
	for _, id := range participantIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Create inserts the chat, then one membership per member. On failure the
// returned error joins the cause with any compensation failures.
func (c *ChatCreator) Create(ctx context.Context, creatorID, name string, participantIDs []string) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidChat
	}

	chat, err := c.data.InsertChat(ctx, &domain.Chat{Name: name})
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}

	members := Members(creatorID, participantIDs)
	added := make([]string, 0, len(members))
	for _, uid := range members {
		if err := c.data.AddParticipant(ctx, chat.ID, uid); err != nil {
			cause := fmt.Errorf("add participant %s: %w", uid, err)
			return nil, errors.Join(cause, c.compensate(ctx, chat.ID, added))
		}
		added = append(added, uid)
	}

	c.log.Info("chat created", zap.String("chat", chat.ID), zap.Int("participants", len(added)))
	return chat, nil
}

// compensate removes the inserted memberships newest first, then the chat.
func (c *ChatCreator) compensate(ctx context.Context, chatID string, added []string) error {
	var errs []error
	for i := len(added) - 1; i >= 0; i-- {
		if err := c.data.RemoveParticipant(ctx, chatID, added[i]); err != nil {
			errs = append(errs, fmt.Errorf("compensate: remove participant %s: %w", added[i], err))
		}
	}
	if err := c.data.DeleteChat(ctx, chatID); err != nil {
		errs = append(errs, fmt.Errorf("compensate: delete chat %s: %w", chatID, err))
	}
	if len(errs) > 0 {
		c.log.Error("chat creation left rows behind", zap.String("chat", chatID), zap.Error(errors.Join(errs...)))
	} else {
		c.log.Warn("chat creation rolled back", zap.String("chat", chatID), zap.Int("removed_participants", len(added)))
	}
	return errors.Join(errs...)
}

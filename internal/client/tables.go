package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// ChatFilter narrows ListChats. Set fields combine on the daemon.
type ChatFilter struct {
	Search     string
	LabelID    string
	AssignedTo string
}

func (f ChatFilter) values() url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.LabelID != "" {
		q.Set("label_id", f.LabelID)
	}
	if f.AssignedTo != "" {
		q.Set("assigned_to", f.AssignedTo)
	}
	return q
}

func (c *Client) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/rest/users/"+url.PathEscape(id), nil, nil, &u); err != nil {
		return nil, orNone(err)
	}
	return &u, nil
}

func (c *Client) InsertUser(ctx context.Context, u *domain.User) (*domain.User, error) {
	var out domain.User
	if err := c.do(ctx, http.MethodPost, "/rest/users", nil, u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := c.do(ctx, http.MethodGet, "/rest/users", nil, nil, &users)
	return users, err
}

// ListChats returns the caller's chats, most recently active first.
func (c *Client) ListChats(ctx context.Context, f ChatFilter) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := c.do(ctx, http.MethodGet, "/rest/chats", f.values(), nil, &chats)
	return chats, err
}

func (c *Client) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := c.do(ctx, http.MethodGet, "/rest/chats/"+url.PathEscape(id), nil, nil, &chat); err != nil {
		return nil, orNone(err)
	}
	return &chat, nil
}

func (c *Client) InsertChat(ctx context.Context, chat *domain.Chat) (*domain.Chat, error) {
	req := struct {
		ID         string  `json:"id,omitempty"`
		Name       string  `json:"name"`
		LabelID    *string `json:"label_id,omitempty"`
		AssignedTo *string `json:"assigned_to,omitempty"`
	}{chat.ID, chat.Name, chat.LabelID, chat.AssignedTo}
	var out domain.Chat
	if err := c.do(ctx, http.MethodPost, "/rest/chats", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateChat(ctx context.Context, id string, u domain.ChatUpdate) error {
	return c.do(ctx, http.MethodPatch, "/rest/chats/"+url.PathEscape(id), nil, u, nil)
}

func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/rest/chats/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) AddParticipant(ctx context.Context, chatID, userID string) error {
	req := map[string]string{"chat_id": chatID, "user_id": userID}
	return c.do(ctx, http.MethodPost, "/rest/chat_participants", nil, req, nil)
}

func (c *Client) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	path := "/rest/chat_participants/" + url.PathEscape(chatID) + "/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) ListParticipants(ctx context.Context, chatID string) ([]domain.Participant, error) {
	var parts []domain.Participant
	err := c.do(ctx, http.MethodGet, "/rest/chats/"+url.PathEscape(chatID)+"/participants", nil, nil, &parts)
	return parts, err
}

// ListMessages returns a chat's messages oldest first, senders resolved.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := c.do(ctx, http.MethodGet, "/rest/chats/"+url.PathEscape(chatID)+"/messages", nil, nil, &msgs)
	return msgs, err
}

// InsertMessage stores a message from the signed-in user. SenderID is set by the daemon.
func (c *Client) InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	req := struct {
		ChatID         string  `json:"chat_id"`
		Content        string  `json:"content"`
		AttachmentURL  *string `json:"attachment_url,omitempty"`
		AttachmentType *string `json:"attachment_type,omitempty"`
	}{m.ChatID, m.Content, m.AttachmentURL, m.AttachmentType}
	var out domain.Message
	if err := c.do(ctx, http.MethodPost, "/rest/messages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListLabels(ctx context.Context) ([]domain.Label, error) {
	var labels []domain.Label
	err := c.do(ctx, http.MethodGet, "/rest/labels", nil, nil, &labels)
	return labels, err
}

func (c *Client) InsertLabel(ctx context.Context, l *domain.Label) (*domain.Label, error) {
	req := map[string]string{"name": l.Name, "color": l.Color}
	var out domain.Label
	if err := c.do(ctx, http.MethodPost, "/rest/labels", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile stores data in the attachments bucket at path.
func (c *Client) UploadFile(ctx context.Context, path string, data []byte, contentType string) (domain.Attachment, error) {
	var att domain.Attachment
	escaped := (&url.URL{Path: path}).EscapedPath()
	err := c.do(ctx, http.MethodPut, "/storage/attachments/"+escaped, nil, rawBody{data: data, contentType: contentType}, &att)
	return att, err
}

// Health is the daemon liveness report.
type Health struct {
	Status string `json:"status"`
	Stats  struct {
		Users    int `json:"users"`
		Chats    int `json:"chats"`
		Messages int `json:"messages"`
		Labels   int `json:"labels"`
	} `json:"stats"`
	RealtimeClients int64 `json:"realtime_clients"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

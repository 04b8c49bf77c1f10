package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// ChatFilter narrows ListChatsForUser. Empty fields are ignored; set fields combine with AND.
type ChatFilter struct {
	Search     string
	LabelID    string
	AssignedTo string
}

const chatColumns = `c.id, c.name, c.last_message, c.created_at, c.last_activity_at, c.label_id, c.assigned_to, c.created_by`

// InsertChat inserts a chat. ID, CreatedAt and LastActivityAt default to a
// new uuid and now.
func (db *DB) InsertChat(c *domain.Chat) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = c.CreatedAt
	}
	_, err := db.Exec(`
		INSERT INTO chats (id, name, last_message, created_at, last_activity_at, label_id, assigned_to, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, nullString(c.LastMessage), c.CreatedAt.UnixMilli(), c.LastActivityAt.UnixMilli(),
		nullString(emptyAsNil(c.LabelID)), nullString(emptyAsNil(c.AssignedTo)), c.CreatedBy)
	return classify(err)
}

// GetChat returns a single chat by id, or nil when absent.
func (db *DB) GetChat(id string) (*domain.Chat, error) {
	row := db.QueryRow(`SELECT `+chatColumns+` FROM chats c WHERE c.id = ?`, id)
	c, err := scanChat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateChat applies a partial update. An empty LabelID or AssignedTo clears the column.
func (db *DB) UpdateChat(id string, u domain.ChatUpdate) error {
	if u.Empty() {
		c, err := db.GetChat(id)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrNotFound
		}
		return nil
	}

	var (
		sets []string
		args []any
	)
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.LastMessage != nil {
		sets = append(sets, "last_message = ?")
		args = append(args, *u.LastMessage)
	}
	if u.LastActivityAt != nil {
		sets = append(sets, "last_activity_at = ?")
		args = append(args, u.LastActivityAt.UnixMilli())
	}
	if u.LabelID != nil {
		sets = append(sets, "label_id = ?")
		args = append(args, nullString(emptyAsNil(u.LabelID)))
	}
	if u.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, nullString(emptyAsNil(u.AssignedTo)))
	}
	args = append(args, id)
	return affected(db.Exec(`UPDATE chats SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...))
}

// DeleteChat removes a chat. Participants and messages cascade.
func (db *DB) DeleteChat(id string) error {
	return affected(db.Exec(`DELETE FROM chats WHERE id = ?`, id))
}

// ListChatsForUser returns the chats userID participates in, most recently
// active first.
func (db *DB) ListChatsForUser(userID string, f ChatFilter) ([]domain.Chat, error) {
	query := `SELECT ` + chatColumns + `
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id AND p.user_id = ?
		WHERE 1 = 1`
	args := []any{userID}
	if f.Search != "" {
		query += ` AND c.name LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(f.Search)+"%")
	}
	if f.LabelID != "" {
		query += ` AND c.label_id = ?`
		args = append(args, f.LabelID)
	}
	if f.AssignedTo != "" {
		query += ` AND c.assigned_to = ?`
		args = append(args, f.AssignedTo)
	}
	query += ` ORDER BY c.last_activity_at DESC, c.id`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []domain.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

func scanChat(s scanner) (*domain.Chat, error) {
	var (
		c                         domain.Chat
		last, labelID, assignedTo sql.NullString
		created, activity         int64
	)
	if err := s.Scan(&c.ID, &c.Name, &last, &created, &activity, &labelID, &assignedTo, &c.CreatedBy); err != nil {
		return nil, err
	}
	c.LastMessage = stringPtr(last)
	c.CreatedAt = domain.UnixMilli(created)
	c.LastActivityAt = domain.UnixMilli(activity)
	c.LabelID = stringPtr(labelID)
	c.AssignedTo = stringPtr(assignedTo)
	return &c, nil
}

func emptyAsNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

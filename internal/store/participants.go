package store

import (
	"time"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// AddParticipant grants userID visibility into chatID. Adding an existing
// member yields ErrDuplicate; a missing chat or user yields ErrReference.
func (db *DB) AddParticipant(p *domain.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO chat_participants (chat_id, user_id, created_at) VALUES (?, ?, ?)`,
		p.ChatID, p.UserID, p.CreatedAt.UnixMilli())
	return classify(err)
}

// RemoveParticipant deletes one membership row.
func (db *DB) RemoveParticipant(chatID, userID string) error {
	return affected(db.Exec(`DELETE FROM chat_participants WHERE chat_id = ? AND user_id = ?`, chatID, userID))
}

// IsParticipant reports whether userID is a member of chatID.
func (db *DB) IsParticipant(chatID, userID string) (bool, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM chat_participants WHERE chat_id = ? AND user_id = ?`, chatID, userID).Scan(&n)
	return n > 0, err
}

// ListParticipants returns the members of a chat in join order.
func (db *DB) ListParticipants(chatID string) ([]domain.Participant, error) {
	rows, err := db.Query(`
		SELECT chat_id, user_id, created_at FROM chat_participants
		WHERE chat_id = ? ORDER BY created_at, user_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Participant
	for rows.Next() {
		var (
			p       domain.Participant
			created int64
		)
		if err := rows.Scan(&p.ChatID, &p.UserID, &created); err != nil {
			return nil, err
		}
		p.CreatedAt = domain.UnixMilli(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ChatIDsForUser returns the ids of every chat userID belongs to.
func (db *DB) ChatIDsForUser(userID string) (map[string]struct{}, error) {
	rows, err := db.Query(`SELECT chat_id FROM chat_participants WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// InsertLabel inserts a label. ID and CreatedAt are generated when empty.
func (db *DB) InsertLabel(l *domain.Label) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`INSERT INTO labels (id, name, color, created_at) VALUES (?, ?, ?, ?)`,
		l.ID, l.Name, l.Color, l.CreatedAt.UnixMilli())
	return classify(err)
}

// ListLabels returns every label ordered by name.
func (db *DB) ListLabels() ([]domain.Label, error) {
	rows, err := db.Query(`SELECT id, name, color, created_at FROM labels ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var labels []domain.Label
	for rows.Next() {
		var (
			l       domain.Label
			created int64
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &created); err != nil {
			return nil, err
		}
		l.CreatedAt = domain.UnixMilli(created)
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// Stats holds row counts reported by the daemon health endpoint.
type Stats struct {
	Users    int `json:"users"`
	Chats    int `json:"chats"`
	Messages int `json:"messages"`
	Labels   int `json:"labels"`
}

// Counts returns current row counts.
func (db *DB) Counts() (Stats, error) {
	var s Stats
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM labels)`).
		Scan(&s.Users, &s.Chats, &s.Messages, &s.Labels)
	return s, err
}

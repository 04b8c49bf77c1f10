package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// InsertMessage inserts a message. ID and CreatedAt default to a new uuid and now.
func (db *DB) InsertMessage(m *domain.Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, chat_id, sender_id, content, created_at, attachment_url, attachment_type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.SenderID, m.Content, m.CreatedAt.UnixMilli(),
		nullString(m.AttachmentURL), nullString(m.AttachmentType))
	return classify(err)
}

// ListMessages returns a chat's messages oldest first with the sender
// profile resolved. Sender is nil when the profile row is gone.
func (db *DB) ListMessages(chatID string) ([]domain.Message, error) {
	rows, err := db.Query(`
		SELECT m.id, m.chat_id, m.sender_id, m.content, m.created_at, m.attachment_url, m.attachment_type,
			u.id, u.email, u.full_name, u.phone_number, u.avatar_url, u.created_at
		FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
		ORDER BY m.created_at ASC, m.id`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m                  domain.Message
			created            int64
			attURL, attType    sql.NullString
			uID, uEmail, uName sql.NullString
			uPhone, uAvatar    sql.NullString
			uCreated           sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &created, &attURL, &attType,
			&uID, &uEmail, &uName, &uPhone, &uAvatar, &uCreated); err != nil {
			return nil, err
		}
		m.CreatedAt = domain.UnixMilli(created)
		m.AttachmentURL = stringPtr(attURL)
		m.AttachmentType = stringPtr(attType)
		if uID.Valid {
			m.Sender = &domain.User{
				ID:          uID.String,
				Email:       uEmail.String,
				FullName:    uName.String,
				PhoneNumber: stringPtr(uPhone),
				AvatarURL:   stringPtr(uAvatar),
				CreatedAt:   domain.UnixMilli(uCreated.Int64),
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

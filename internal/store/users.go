package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// CreateIdentity inserts an auth identity. ID and CreatedAt are generated
// when empty. A second identity with the same email yields ErrDuplicate.
func (db *DB) CreateIdentity(ident *domain.Identity, passwordHash string) error {
	if ident.ID == "" {
		ident.ID = uuid.NewString()
	}
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO identities (id, email, password_hash, full_name, phone_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ident.ID, ident.Email, passwordHash, ident.Metadata.FullName, ident.Metadata.PhoneNumber,
		ident.CreatedAt.UnixMilli())
	return classify(err)
}

// GetIdentityByEmail returns the identity and its password hash, or nil when absent.
func (db *DB) GetIdentityByEmail(email string) (*domain.Identity, string, error) {
	row := db.QueryRow(`
		SELECT id, email, password_hash, full_name, phone_number, created_at
		FROM identities WHERE email = ?`, email)
	return scanIdentity(row)
}

// GetIdentity returns the identity with the given id, or nil when absent.
func (db *DB) GetIdentity(id string) (*domain.Identity, error) {
	row := db.QueryRow(`
		SELECT id, email, password_hash, full_name, phone_number, created_at
		FROM identities WHERE id = ?`, id)
	ident, _, err := scanIdentity(row)
	return ident, err
}

func scanIdentity(row *sql.Row) (*domain.Identity, string, error) {
	var (
		ident   domain.Identity
		hash    string
		created int64
	)
	err := row.Scan(&ident.ID, &ident.Email, &hash, &ident.Metadata.FullName, &ident.Metadata.PhoneNumber, &created)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	ident.CreatedAt = domain.UnixMilli(created)
	return &ident, hash, nil
}

// InsertUser inserts a profile row. ID and CreatedAt are generated when empty.
func (db *DB) InsertUser(u *domain.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(`
		INSERT INTO users (id, email, full_name, phone_number, avatar_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, nullString(u.PhoneNumber), nullString(u.AvatarURL), u.CreatedAt.UnixMilli())
	return classify(err)
}

// GetUser returns a profile row by id, or nil when absent.
func (db *DB) GetUser(id string) (*domain.User, error) {
	row := db.QueryRow(`
		SELECT id, email, full_name, phone_number, avatar_url, created_at
		FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns every profile, newest first.
func (db *DB) ListUsers() ([]domain.User, error) {
	rows, err := db.Query(`
		SELECT id, email, full_name, phone_number, avatar_url, created_at
		FROM users ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		u             domain.User
		phone, avatar sql.NullString
		created       int64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.FullName, &phone, &avatar, &created); err != nil {
		return nil, err
	}
	u.PhoneNumber = stringPtr(phone)
	u.AvatarURL = stringPtr(avatar)
	u.CreatedAt = domain.UnixMilli(created)
	return &u, nil
}

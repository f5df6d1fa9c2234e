package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned for lookups that match no user row.
var ErrUserNotFound = errors.New("auth: user not found")

// ErrSessionNotFound is returned for refresh tokens with no session row.
var ErrSessionNotFound = errors.New("auth: session not found")

// UserRecord is the stored user row, password hash included.
type UserRecord struct {
	ID           pgtype.UUID
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    pgtype.Timestamptz
	UpdatedAt    pgtype.Timestamptz
}

// SessionRecord is one refresh-token session.
type SessionRecord struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	RefreshToken string
	UserAgent    pgtype.Text
	IP           pgtype.Text
	ExpiresAt    pgtype.Timestamptz
}

// Store is the persistence contract for users and sessions.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id pgtype.UUID) (UserRecord, error)
	CreateSession(ctx context.Context, s SessionRecord) (SessionRecord, error)
	GetSessionByToken(ctx context.Context, hashedToken string) (SessionRecord, error)
	RotateSessionToken(ctx context.Context, sessionID pgtype.UUID, hashedToken string, expiresAt pgtype.Timestamptz) error
	DeleteSessionByToken(ctx context.Context, hashedToken string) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

const userColumns = `id, name, email, password_hash, created_at, updated_at`

func (s PGStore) CreateUser(ctx context.Context, name, email, passwordHash string) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns, name, email, passwordHash)
	return scanUser(row)
}

func (s PGStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s PGStore) GetUserByID(ctx context.Context, id pgtype.UUID) (UserRecord, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (s PGStore) CreateSession(ctx context.Context, sess SessionRecord) (SessionRecord, error) {
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO auth_sessions (user_id, refresh_token, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, refresh_token, user_agent, ip, expires_at`,
		sess.UserID, sess.RefreshToken, sess.UserAgent, sess.IP, sess.ExpiresAt)
	return scanSession(row)
}

func (s PGStore) GetSessionByToken(ctx context.Context, hashedToken string) (SessionRecord, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, user_id, refresh_token, user_agent, ip, expires_at
		FROM auth_sessions WHERE refresh_token = $1`, hashedToken)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrSessionNotFound
	}
	return sess, err
}

func (s PGStore) RotateSessionToken(ctx context.Context, sessionID pgtype.UUID, hashedToken string, expiresAt pgtype.Timestamptz) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE auth_sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1`,
		sessionID, hashedToken, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s PGStore) DeleteSessionByToken(ctx context.Context, hashedToken string) error {
	_, err := s.Pool.Exec(ctx, `DELETE FROM auth_sessions WHERE refresh_token = $1`, hashedToken)
	return err
}

func scanUser(row pgx.Row) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrUserNotFound
	}
	return u, err
}

func scanSession(row pgx.Row) (SessionRecord, error) {
	var sess SessionRecord
	err := row.Scan(&sess.ID, &sess.UserID, &sess.RefreshToken, &sess.UserAgent, &sess.IP, &sess.ExpiresAt)
	return sess, err
}

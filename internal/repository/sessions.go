package repository

import (
	"context"
	"time"

	"github.com/yslanlopes12/biblioteca-sistema/internal/model"
)

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO refresh_sessions (id, person_id, token_hash, user_agent, ip_address, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		session.ID, session.PersonID, session.TokenHash, session.UserAgent, session.IPAddress,
		session.CreatedAt, session.ExpiresAt)
	return err
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	row := s.q.QueryRow(ctx, `
		SELECT id, person_id, token_hash, user_agent, ip_address, created_at, expires_at, revoked_at
		FROM refresh_sessions WHERE token_hash = $1`, tokenHash)
	var session model.RefreshSession
	err := row.Scan(&session.ID, &session.PersonID, &session.TokenHash, &session.UserAgent,
		&session.IPAddress, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt)
	if err != nil {
		return model.RefreshSession{}, mapNoRows(err)
	}
	return session, nil
}

func (s *Store) RevokeRefreshSession(ctx context.Context, id string, at time.Time) error {
	_, err := s.q.Exec(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, at)
	return err
}

func (s *Store) RevokeRefreshSessionsByPerson(ctx context.Context, personID int64, at time.Time) error {
	_, err := s.q.Exec(ctx, `
		UPDATE refresh_sessions SET revoked_at = $2 WHERE person_id = $1 AND revoked_at IS NULL`, personID, at)
	return err
}

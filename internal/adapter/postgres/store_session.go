package postgres

import (
	"context"
	"fmt"

	"github.com/knappson/askgate/internal/domain"
	"github.com/knappson/askgate/internal/domain/session"
)

const sessionCols = `id, agent_id, feature_id, status, created_at, updated_at, expires_at`

func scanSession(row scannable) (*session.Session, error) {
	var s session.Session
	var feature *string
	if err := row.Scan(&s.ID, &s.AgentID, &feature, &s.Status,
		&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	s.FeatureID = orEmpty(feature)
	return &s, nil
}

func (s *Store) CreateSession(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("create session: %w: %w", domain.ErrValidation, err)
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (agent_id, feature_id, expires_at)
		 VALUES ($1, $2, now() + make_interval(secs => $3))
		 RETURNING `+sessionCols,
		req.AgentID, nullIfEmpty(req.FeatureID), s.ttl.Seconds())

	created, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

// expireSession persists the Active -> Expired transition when the session's
// window has elapsed. Runs before any other logic on every session read or
// write; the conditional UPDATE is atomic, so concurrent readers cannot
// disagree about the transition.
func expireSession(ctx context.Context, q querier, id string) error {
	_, err := q.Exec(ctx,
		`UPDATE sessions SET status = 'expired', updated_at = now()
		 WHERE id = $1 AND status = 'active' AND expires_at < now()`, id)
	if err != nil {
		return fmt.Errorf("expire session %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*session.Session, error) {
	if err := expireSession(ctx, s.pool, id); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, status session.Status) ([]session.Session, error) {
	// Bulk lazy expiry so listings never show stale Active sessions.
	if _, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = 'expired', updated_at = now()
		 WHERE status = 'active' AND expires_at < now()`); err != nil {
		return nil, fmt.Errorf("expire sessions: %w", err)
	}

	query := `SELECT ` + sessionCols + ` FROM sessions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var result []session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		result = append(result, *sess)
	}
	return result, rows.Err()
}

func (s *Store) CloseSession(ctx context.Context, id string) (*session.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("close session %s: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := expireSession(ctx, tx, id); err != nil {
		return nil, err
	}

	var status session.Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		return nil, notFoundWrap(err, "close session %s", id)
	}

	switch status {
	case session.StatusClosed:
		// Idempotent: the already-closed session is returned unchanged.
		row := tx.QueryRow(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
		sess, err := scanSession(row)
		if err != nil {
			return nil, fmt.Errorf("close session %s: %w", id, err)
		}
		return sess, tx.Commit(ctx)
	case session.StatusExpired:
		return nil, fmt.Errorf("close session %s: %w", id, session.ErrExpired)
	}

	row := tx.QueryRow(ctx,
		`UPDATE sessions SET status = 'closed', updated_at = now()
		 WHERE id = $1 RETURNING `+sessionCols, id)
	sess, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("close session %s: %w", id, err)
	}
	return sess, tx.Commit(ctx)
}

func (s *Store) AppendMessage(ctx context.Context, sessionID string, req session.AppendRequest) (*session.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("append message: %w: %w", domain.ErrValidation, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("append message to %s: begin: %w", sessionID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := expireSession(ctx, tx, sessionID); err != nil {
		return nil, err
	}

	var status session.Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&status)
	if err != nil {
		return nil, notFoundWrap(err, "append message to %s", sessionID)
	}

	switch status {
	case session.StatusClosed:
		return nil, fmt.Errorf("append message to %s: %w", sessionID, session.ErrClosed)
	case session.StatusExpired:
		return nil, fmt.Errorf("append message to %s: %w", sessionID, session.ErrExpired)
	}

	meta, err := marshalMetadata(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, err)
	}

	var msg session.Message
	var rawMeta []byte
	err = tx.QueryRow(ctx,
		`INSERT INTO session_messages (session_id, role, content, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, session_id, role, content, metadata, created_at`,
		sessionID, req.Role, req.Content, meta,
	).Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &rawMeta, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, err)
	}
	if msg.Metadata, err = unmarshalMetadata(rawMeta); err != nil {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return nil, fmt.Errorf("append message to %s: touch session: %w", sessionID, err)
	}

	return &msg, tx.Commit(ctx)
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]session.Message, error) {
	if err := expireSession(ctx, s.pool, sessionID); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, domain.ErrNotFound)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, session_id, role, content, metadata, created_at
		 FROM session_messages WHERE session_id = $1 ORDER BY created_at ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var result []session.Message
	for rows.Next() {
		var m session.Message
		var rawMeta []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &rawMeta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Metadata, err = unmarshalMetadata(rawMeta); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/knappson/askgate/internal/domain"
	"github.com/knappson/askgate/internal/domain/escalation"
)

const escalationCols = `id, session_id, question_id, topic, question, tentative_answer,
	confidence, uncertainty_reasons, status, human_action, human_response,
	human_responder, notification_ref, created_at, resolved_at, updated_at`

func scanEscalation(row scannable) (*escalation.Escalation, error) {
	var e escalation.Escalation
	var sessionID, action, response, responder, ref *string
	if err := row.Scan(&e.ID, &sessionID, &e.QuestionID, &e.Topic, &e.Question,
		&e.TentativeAnswer, &e.Confidence, &e.UncertaintyReasons, &e.Status,
		&action, &response, &responder, &ref,
		&e.CreatedAt, &e.ResolvedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.SessionID = orEmpty(sessionID)
	e.HumanAction = escalation.Action(orEmpty(action))
	e.HumanResponse = orEmpty(response)
	e.HumanResponder = orEmpty(responder)
	e.NotificationRef = orEmpty(ref)
	return &e, nil
}

func (s *Store) CreateEscalation(ctx context.Context, req escalation.CreateRequest) (*escalation.Escalation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("create escalation: %w: %w", domain.ErrValidation, err)
	}

	reasons := req.UncertaintyReasons
	if reasons == nil {
		reasons = []string{}
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO escalations (session_id, question_id, topic, question, tentative_answer, confidence, uncertainty_reasons)
		 VALUES ($1, COALESCE($2::uuid, gen_random_uuid()), $3, $4, $5, $6, $7)
		 RETURNING `+escalationCols,
		nullIfEmpty(req.SessionID), nullIfEmpty(req.QuestionID),
		req.Topic, req.Question, req.TentativeAnswer, req.Confidence, reasons)

	created, err := scanEscalation(row)
	if err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	return created, nil
}

func (s *Store) GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+escalationCols+` FROM escalations WHERE id = $1`, id)
	e, err := scanEscalation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get escalation %s", id)
	}
	return e, nil
}

func (s *Store) ListEscalations(ctx context.Context, status escalation.Status) ([]escalation.Escalation, error) {
	query := `SELECT ` + escalationCols + ` FROM escalations`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	defer rows.Close()

	var result []escalation.Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation: %w", err)
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (s *Store) ResolveEscalation(ctx context.Context, id string, req escalation.HumanResponseRequest) (*escalation.Escalation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("resolve escalation: %w: %w", domain.ErrValidation, err)
	}

	// Compare-and-swap on status: of two concurrent submissions only one
	// matches status = 'pending'; the loser falls through to the state check
	// below and the winning decision is never overwritten.
	row := s.pool.QueryRow(ctx,
		`UPDATE escalations
		 SET human_action = $2, human_response = $3, human_responder = $4,
		     status = 'resolved', resolved_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+escalationCols,
		id, string(req.Action), nullIfEmpty(req.Response), req.Responder)

	resolved, err := scanEscalation(row)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("resolve escalation %s: %w", id, err)
	}

	var status escalation.Status
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM escalations WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return nil, notFoundWrap(err, "resolve escalation %s", id)
	}
	if status == escalation.StatusResolved {
		return nil, fmt.Errorf("resolve escalation %s: %w", id, escalation.ErrAlreadyResolved)
	}
	return nil, fmt.Errorf("resolve escalation %s: status %s: %w", id, status, domain.ErrConflict)
}

func (s *Store) SetNotificationRef(ctx context.Context, id, ref string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE escalations SET notification_ref = $2, updated_at = now() WHERE id = $1`,
		id, ref)
	return execExpectOne(tag, err, "set notification ref on %s", id)
}

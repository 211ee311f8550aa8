package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knappson/askgate/internal/adapter/ws"
	"github.com/knappson/askgate/internal/domain/routing"
	"github.com/knappson/askgate/internal/domain/session"
	"github.com/knappson/askgate/internal/port/database"
)

// Broadcaster pushes live events to connected WebSocket clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// EventPublisher publishes lifecycle events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event any) error
}

// SessionService manages conversational session lifecycle.
type SessionService struct {
	store  database.Store
	table  *routing.Table
	hub    Broadcaster
	events EventPublisher
}

// NewSessionService creates a SessionService. hub and events may be nil.
func NewSessionService(store database.Store, table *routing.Table, hub Broadcaster, events EventPublisher) *SessionService {
	return &SessionService{store: store, table: table, hub: hub, events: events}
}

// Create opens a new session scoped to a configured agent.
func (s *SessionService) Create(ctx context.Context, req session.CreateRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.table.ResolveAgent(req.AgentID); err != nil {
		return nil, err
	}

	sess, err := s.store.CreateSession(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	slog.Info("session created", "session_id", sess.ID, "agent_id", sess.AgentID)
	s.emitSessionEvent(ctx, ws.EventSessionCreated, "sessions.created", sess)
	return sess, nil
}

// Get returns a session together with its full message history.
func (s *SessionService) Get(ctx context.Context, id string) (*session.Session, []session.Message, error) {
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	return sess, msgs, nil
}

// List returns sessions, optionally filtered by status.
func (s *SessionService) List(ctx context.Context, status session.Status) ([]session.Session, error) {
	return s.store.ListSessions(ctx, status)
}

// Close terminates a session. Closing an already-closed session is a no-op.
func (s *SessionService) Close(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.store.CloseSession(ctx, id)
	if err != nil {
		return nil, err
	}
	slog.Info("session closed", "session_id", sess.ID)
	s.emitSessionEvent(ctx, ws.EventSessionClosed, "sessions.closed", sess)
	return sess, nil
}

func (s *SessionService) emitSessionEvent(ctx context.Context, eventType, subject string, sess *session.Session) {
	payload := ws.SessionEvent{
		SessionID: sess.ID,
		AgentID:   sess.AgentID,
		Status:    string(sess.Status),
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, subject, payload); err != nil {
			slog.Warn("event publish failed", "subject", subject, "error", err)
		}
	}
}

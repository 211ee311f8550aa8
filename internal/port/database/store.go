// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/session"
)

// Store is the port interface for durable session and escalation state.
//
// Implementations own the per-record state machines:
//
//   - Every session read or write first runs the lazy expiry check and
//     persists the Active -> Expired transition atomically before any other
//     logic. There is no background sweeper.
//   - AppendMessage rejects writes to terminal sessions with
//     session.ErrClosed or session.ErrExpired (distinct kinds, so callers
//     can open a fresh session on expiry but treat closed as final).
//   - ResolveEscalation is single-writer per record: of two concurrent
//     submissions only one observes Pending; the loser gets
//     escalation.ErrAlreadyResolved and the record keeps the first decision.
type Store interface {
	// Sessions
	CreateSession(ctx context.Context, req session.CreateRequest) (*session.Session, error)
	GetSession(ctx context.Context, id string) (*session.Session, error)
	ListSessions(ctx context.Context, status session.Status) ([]session.Session, error)
	// CloseSession is idempotent on an already-closed session; closing an
	// expired session fails with session.ErrExpired.
	CloseSession(ctx context.Context, id string) (*session.Session, error)
	AppendMessage(ctx context.Context, sessionID string, req session.AppendRequest) (*session.Message, error)
	// ListMessages returns the session's messages in creation order as a
	// snapshot read.
	ListMessages(ctx context.Context, sessionID string) ([]session.Message, error)

	// Escalations
	CreateEscalation(ctx context.Context, req escalation.CreateRequest) (*escalation.Escalation, error)
	GetEscalation(ctx context.Context, id string) (*escalation.Escalation, error)
	ListEscalations(ctx context.Context, status escalation.Status) ([]escalation.Escalation, error)
	// ResolveEscalation commits action, response, responder, status and
	// resolved_at as one atomic write.
	ResolveEscalation(ctx context.Context, id string, req escalation.HumanResponseRequest) (*escalation.Escalation, error)
	// SetNotificationRef records the external review-request reference
	// (e.g. a posted comment URL) on a pending escalation.
	SetNotificationRef(ctx context.Context, id, ref string) error
}

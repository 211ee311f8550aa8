// Package memory implements the database store port with an in-process map.
// It backs unit tests and the standalone dev mode; the state-machine rules it
// enforces are identical to the postgres adapter's.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/knappson/askgate/internal/domain"
	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/session"
)

// Store implements database.Store with mutex-guarded maps. The single mutex
// serializes every read-modify-write, which satisfies the per-record
// atomicity the port demands.
type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	ttl         time.Duration
	sessions    map[string]*session.Session
	messages    map[string][]session.Message
	escalations map[string]*escalation.Escalation
}

// NewStore creates an empty in-memory store with the given session TTL.
// ttl <= 0 selects session.DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	return NewStoreWithClock(ttl, time.Now)
}

// NewStoreWithClock creates a store with a custom clock, for deterministic
// expiry in tests.
func NewStoreWithClock(ttl time.Duration, now func() time.Time) *Store {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Store{
		now:         now,
		ttl:         ttl,
		sessions:    make(map[string]*session.Session),
		messages:    make(map[string][]session.Message),
		escalations: make(map[string]*escalation.Escalation),
	}
}

// --- Sessions ---

func (s *Store) CreateSession(_ context.Context, req session.CreateRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("create session: %w: %w", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &session.Session{
		ID:        uuid.NewString(),
		AgentID:   req.AgentID,
		FeatureID: req.FeatureID,
		Status:    session.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions[sess.ID] = sess
	return copySession(sess), nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lockedSession(id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return copySession(sess), nil
}

func (s *Store) ListSessions(_ context.Context, status session.Status) ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []session.Session
	for _, sess := range s.sessions {
		s.expireLocked(sess)
		if status != "" && sess.Status != status {
			continue
		}
		result = append(result, *copySession(sess))
	}
	sortSessions(result)
	return result, nil
}

func (s *Store) CloseSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lockedSession(id)
	if err != nil {
		return nil, fmt.Errorf("close session %s: %w", id, err)
	}

	switch sess.Status {
	case session.StatusClosed:
		// Idempotent: re-closing returns the closed session unchanged.
		return copySession(sess), nil
	case session.StatusExpired:
		return nil, fmt.Errorf("close session %s: %w", id, session.ErrExpired)
	}

	sess.Status = session.StatusClosed
	sess.UpdatedAt = s.now()
	return copySession(sess), nil
}

func (s *Store) AppendMessage(_ context.Context, sessionID string, req session.AppendRequest) (*session.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("append message: %w: %w", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lockedSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, err)
	}
	if err := sess.Writable(); err != nil {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, err)
	}

	now := s.now()
	// Creation order must stay monotonic even when the clock does not tick
	// between appends.
	if msgs := s.messages[sessionID]; len(msgs) > 0 {
		if last := msgs[len(msgs)-1].CreatedAt; !now.After(last) {
			now = last.Add(time.Microsecond)
		}
	}

	msg := session.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      req.Role,
		Content:   req.Content,
		Metadata:  copyMetadata(req.Metadata),
		CreatedAt: now,
	}
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	sess.UpdatedAt = s.now()

	out := msg
	out.Metadata = copyMetadata(msg.Metadata)
	return &out, nil
}

func (s *Store) ListMessages(_ context.Context, sessionID string) ([]session.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lockedSession(sessionID); err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", sessionID, err)
	}

	msgs := s.messages[sessionID]
	result := make([]session.Message, len(msgs))
	for i, m := range msgs {
		result[i] = m
		result[i].Metadata = copyMetadata(m.Metadata)
	}
	return result, nil
}

// lockedSession returns the live session record after running the lazy
// expiry transition. Callers must hold s.mu.
func (s *Store) lockedSession(id string) (*session.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	s.expireLocked(sess)
	return sess, nil
}

// expireLocked applies Active -> Expired when the window has elapsed.
// The transition is monotonic: once expired, a session never reactivates.
func (s *Store) expireLocked(sess *session.Session) {
	if sess.ExpiredBy(s.now()) {
		sess.Status = session.StatusExpired
		sess.UpdatedAt = s.now()
	}
}

// --- Escalations ---

func (s *Store) CreateEscalation(_ context.Context, req escalation.CreateRequest) (*escalation.Escalation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("create escalation: %w: %w", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	questionID := req.QuestionID
	if questionID == "" {
		questionID = uuid.NewString()
	}

	esc := &escalation.Escalation{
		ID:                 uuid.NewString(),
		SessionID:          req.SessionID,
		QuestionID:         questionID,
		Topic:              req.Topic,
		Question:           req.Question,
		TentativeAnswer:    req.TentativeAnswer,
		Confidence:         req.Confidence,
		UncertaintyReasons: append([]string(nil), req.UncertaintyReasons...),
		Status:             escalation.StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	s.escalations[esc.ID] = esc
	return copyEscalation(esc), nil
}

func (s *Store) GetEscalation(_ context.Context, id string) (*escalation.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	esc, ok := s.escalations[id]
	if !ok {
		return nil, fmt.Errorf("get escalation %s: %w", id, domain.ErrNotFound)
	}
	return copyEscalation(esc), nil
}

func (s *Store) ListEscalations(_ context.Context, status escalation.Status) ([]escalation.Escalation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []escalation.Escalation
	for _, esc := range s.escalations {
		if status != "" && esc.Status != status {
			continue
		}
		result = append(result, *copyEscalation(esc))
	}
	sortEscalations(result)
	return result, nil
}

func (s *Store) ResolveEscalation(_ context.Context, id string, req escalation.HumanResponseRequest) (*escalation.Escalation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("resolve escalation: %w: %w", domain.ErrValidation, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	esc, ok := s.escalations[id]
	if !ok {
		return nil, fmt.Errorf("resolve escalation %s: %w", id, domain.ErrNotFound)
	}
	if esc.Status == escalation.StatusResolved {
		return nil, fmt.Errorf("resolve escalation %s: %w", id, escalation.ErrAlreadyResolved)
	}

	now := s.now()
	esc.HumanAction = req.Action
	esc.HumanResponse = req.Response
	esc.HumanResponder = req.Responder
	esc.Status = escalation.StatusResolved
	esc.ResolvedAt = &now
	esc.UpdatedAt = now
	return copyEscalation(esc), nil
}

func (s *Store) SetNotificationRef(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	esc, ok := s.escalations[id]
	if !ok {
		return fmt.Errorf("set notification ref on %s: %w", id, domain.ErrNotFound)
	}
	esc.NotificationRef = ref
	esc.UpdatedAt = s.now()
	return nil
}

// --- copies ---

func copySession(sess *session.Session) *session.Session {
	out := *sess
	return &out
}

func copyEscalation(esc *escalation.Escalation) *escalation.Escalation {
	out := *esc
	out.UncertaintyReasons = append([]string(nil), esc.UncertaintyReasons...)
	if esc.ResolvedAt != nil {
		t := *esc.ResolvedAt
		out.ResolvedAt = &t
	}
	return &out
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortSessions(s []session.Session) {
	sort.Slice(s, func(i, j int) bool { return s[i].CreatedAt.Before(s[j].CreatedAt) })
}

func sortEscalations(e []escalation.Escalation) {
	sort.Slice(e, func(i, j int) bool { return e[i].CreatedAt.Before(e[j].CreatedAt) })
}

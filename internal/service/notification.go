// Package service contains application services.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/port/cache"
	"github.com/knappson/askgate/internal/port/notifier"
)

// NotificationService dispatches review requests to all configured sinks.
// Delivery is best-effort: the escalation record is the durable source of
// truth, so sink failures are logged and swallowed, never propagated.
type NotificationService struct {
	notifiers []notifier.Notifier
	dedup     cache.Cache
	dedupTTL  time.Duration
	timeout   time.Duration
}

// NewNotificationService creates a NotificationService. dedup may be nil,
// in which case retried asks can deliver duplicate review requests.
func NewNotificationService(notifiers []notifier.Notifier, dedup cache.Cache, dedupTTL, timeout time.Duration) *NotificationService {
	return &NotificationService{
		notifiers: notifiers,
		dedup:     dedup,
		dedupTTL:  dedupTTL,
		timeout:   timeout,
	}
}

// Notify sends a notification to all sinks and returns the first non-empty
// delivery reference (e.g. a posted comment URL). Errors never abort
// delivery to the remaining sinks.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) string {
	if len(s.notifiers) == 0 {
		return ""
	}

	if s.dedup != nil && n.Ref != "" {
		key := "notify:" + n.Source + ":" + n.Ref
		if _, seen, _ := s.dedup.Get(ctx, key); seen {
			slog.Debug("notification suppressed as duplicate", "source", n.Source, "ref", n.Ref)
			return ""
		}
		_ = s.dedup.Set(ctx, key, []byte{1}, s.dedupTTL)
	}

	var ref string
	for _, provider := range s.notifiers {
		sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
		delivered, err := provider.Send(sendCtx, n)
		cancel()
		if err != nil {
			slog.Warn("notification send failed",
				"provider", provider.Name(),
				"title", n.Title,
				"error", err,
			)
			continue
		}
		slog.Debug("notification sent", "provider", provider.Name(), "title", n.Title)
		if ref == "" {
			ref = delivered
		}
	}
	return ref
}

// NotifierCount returns the number of registered sinks.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}

// reviewNotification formats the human-review request for an escalation,
// including the three recognized response verbs.
func reviewNotification(esc *escalation.Escalation) notifier.Notification {
	var b strings.Builder
	fmt.Fprintf(&b, "*Topic:* %s\n*Confidence:* %d\n\n", esc.Topic, esc.Confidence)
	fmt.Fprintf(&b, "*Question:*\n%s\n\n", esc.Question)
	fmt.Fprintf(&b, "*Tentative answer:*\n%s\n", esc.TentativeAnswer)
	if len(esc.UncertaintyReasons) > 0 {
		fmt.Fprintf(&b, "\n*Uncertainty:*\n- %s\n", strings.Join(esc.UncertaintyReasons, "\n- "))
	}
	fmt.Fprintf(&b, "\nReply with `confirm`, `correct <answer>` or `context <info>` referencing escalation `%s`.", esc.ID)

	return notifier.Notification{
		Title:   fmt.Sprintf("Review needed: %s", esc.Topic),
		Message: b.String(),
		Level:   "warning",
		Source:  "escalation.created",
		Ref:     esc.ID,
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knappson/askgate/internal/port/notifier"
)

// mapCache is a trivial cache.Cache for tests.
type mapCache struct {
	data map[string][]byte
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func TestNotify_FirstRefWins(t *testing.T) {
	t.Parallel()

	slackish := &fakeNotifier{ref: ""}
	githubish := &fakeNotifier{ref: "https://github.com/o/r/issues/1#issuecomment-2"}
	svc := NewNotificationService([]notifier.Notifier{slackish, githubish}, nil, time.Hour, time.Second)

	ref := svc.Notify(context.Background(), notifier.Notification{Title: "t", Message: "m", Ref: "esc-1"})
	if ref != githubish.ref {
		t.Errorf("expected first non-empty ref, got %q", ref)
	}
	if len(slackish.sent) != 1 || len(githubish.sent) != 1 {
		t.Error("expected delivery to every sink")
	}
}

func TestNotify_FailingSinkDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	failing := &fakeNotifier{err: errors.New("webhook down")}
	working := &fakeNotifier{ref: "ref-1"}
	svc := NewNotificationService([]notifier.Notifier{failing, working}, nil, time.Hour, time.Second)

	ref := svc.Notify(context.Background(), notifier.Notification{Title: "t", Message: "m", Ref: "esc-1"})
	if ref != "ref-1" {
		t.Errorf("expected ref from the working sink, got %q", ref)
	}
}

func TestNotify_Dedup(t *testing.T) {
	t.Parallel()

	sink := &fakeNotifier{}
	svc := NewNotificationService([]notifier.Notifier{sink}, newMapCache(), time.Hour, time.Second)

	n := notifier.Notification{Title: "t", Message: "m", Source: "escalation.created", Ref: "esc-1"}
	svc.Notify(context.Background(), n)
	svc.Notify(context.Background(), n)

	if len(sink.sent) != 1 {
		t.Errorf("expected duplicate to be suppressed, got %d sends", len(sink.sent))
	}

	// A different escalation is not a duplicate.
	other := n
	other.Ref = "esc-2"
	svc.Notify(context.Background(), other)
	if len(sink.sent) != 2 {
		t.Errorf("expected distinct ref to go through, got %d sends", len(sink.sent))
	}
}

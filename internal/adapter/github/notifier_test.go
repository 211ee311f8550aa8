package github

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/knappson/askgate/internal/port/notifier"
)

func TestValidateRepo(t *testing.T) {
	t.Parallel()

	for _, repo := range []string{"owner/name", "my-org/my.repo", "a_b/c-d"} {
		if err := validateRepo(repo); err != nil {
			t.Errorf("expected %q to be valid: %v", repo, err)
		}
	}
	for _, repo := range []string{"owner", "owner/name/extra", "owner/", "/name", "owner/name; rm -rf"} {
		if err := validateRepo(repo); err == nil {
			t.Errorf("expected %q to be rejected", repo)
		}
	}
}

func TestSend_BuildsGhCommand(t *testing.T) {
	t.Parallel()

	var gotArgs []string
	n := NewNotifier("owner/repo", "42")
	n.execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotArgs = append([]string{name}, args...)
		// Substitute a command that prints a comment URL like gh does.
		return exec.CommandContext(ctx, "echo", "https://github.com/owner/repo/issues/42#issuecomment-7")
	}

	ref, err := n.Send(context.Background(), notifier.Notification{
		Title:   "Review needed: security",
		Message: "please check",
		Ref:     "esc-123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "https://github.com/owner/repo/issues/42#issuecomment-7" {
		t.Errorf("expected comment URL as ref, got %q", ref)
	}

	if gotArgs[0] != "gh" || gotArgs[1] != "issue" || gotArgs[2] != "comment" || gotArgs[3] != "42" {
		t.Errorf("unexpected command %v", gotArgs)
	}
	body := gotArgs[len(gotArgs)-1]
	if !strings.Contains(body, "## Review needed: security") {
		t.Errorf("expected title heading in body, got %q", body)
	}
	if !strings.Contains(body, "askgate:esc-123") {
		t.Errorf("expected correlation marker in body, got %q", body)
	}
}

func TestSend_CommandFailure(t *testing.T) {
	t.Parallel()

	n := NewNotifier("owner/repo", "42")
	n.execCommand = func(ctx context.Context, _ string, _ ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "false")
	}

	if _, err := n.Send(context.Background(), notifier.Notification{Title: "t", Message: "m"}); err == nil {
		t.Fatal("expected error when gh fails")
	}
}

func TestRegistry_RequiresRepoAndIssue(t *testing.T) {
	t.Parallel()

	if _, err := notifier.New(providerName, map[string]string{"repo": "owner/repo"}); err == nil {
		t.Error("expected error for missing issue")
	}
	if _, err := notifier.New(providerName, map[string]string{"repo": "bad repo", "issue": "1"}); err == nil {
		t.Error("expected error for invalid repo")
	}
	n, err := notifier.New(providerName, map[string]string{"repo": "owner/repo", "issue": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !n.Capabilities().DeliveryRef {
		t.Error("github notifier should report a delivery ref")
	}
}

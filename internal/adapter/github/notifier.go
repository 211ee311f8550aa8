// Package github implements a notifier.Notifier that posts review requests
// as GitHub issue comments using the gh CLI.
package github

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	"github.com/knappson/askgate/internal/port/notifier"
)

const providerName = "github"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		repo, issue := config["repo"], config["issue"]
		if repo == "" || issue == "" {
			return nil, notifier.ErrNotConfigured
		}
		if err := validateRepo(repo); err != nil {
			return nil, err
		}
		return NewNotifier(repo, issue), nil
	})
}

var repoPattern = regexp.MustCompile(`^[\w.-]+/[\w.-]+$`)

func validateRepo(repo string) error {
	if !repoPattern.MatchString(repo) {
		return fmt.Errorf("github: invalid repo %q (want owner/name)", repo)
	}
	return nil
}

// Notifier posts comments on a fixed review issue in a repository.
type Notifier struct {
	repo  string
	issue string
	// execCommand is swappable for testing.
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewNotifier creates a GitHub notifier for the given owner/name repo and
// issue number.
func NewNotifier(repo, issue string) *Notifier {
	return &Notifier{
		repo:        repo,
		issue:       issue,
		execCommand: exec.CommandContext,
	}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{
		RichFormatting: true,
		DeliveryRef:    true,
	}
}

// Send posts the notification as an issue comment and returns the comment
// URL printed by gh as the delivery reference.
func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", notification.Title)
	b.WriteString(notification.Message)
	if notification.Ref != "" {
		fmt.Fprintf(&b, "\n\n<!-- askgate:%s -->", notification.Ref)
	}

	cmd := n.execCommand(ctx, "gh", "issue", "comment", n.issue,
		"--repo", n.repo,
		"--body", b.String(),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("gh issue comment: %s: %w", strings.TrimSpace(stderr.String()), err)
	}

	// gh prints the new comment's URL on success.
	return strings.TrimSpace(stdout.String()), nil
}

package turn

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	contextTaskLimit    = 10
	contextCalendarSpan = 14 * 24 * time.Hour
)

// renderContext assembles the workspace snapshot handed to the provider:
// people, channels, the user's open tasks, and the upcoming calendar. The
// snapshot is plain text; the provider reaches for tools when it needs
// anything fresher or deeper.
func (r *Runner) renderContext(ctx context.Context, userID string) (string, error) {
	var b strings.Builder

	users, err := r.store.ListUsers(ctx)
	if err != nil {
		return "", fmt.Errorf("listing users: %w", err)
	}
	b.WriteString("## People\n")
	for _, u := range users {
		fmt.Fprintf(&b, "- %s (%s)\n", u.DisplayName, u.Handle)
	}

	channels, err := r.store.ListChannels(ctx)
	if err != nil {
		return "", fmt.Errorf("listing channels: %w", err)
	}
	b.WriteString("\n## Channels\n")
	for _, c := range channels {
		fmt.Fprintf(&b, "- #%s: %s\n", c.ChannelSlug, c.Title)
	}

	tasks, err := r.store.ListWorkspaceTasks(ctx, userID, contextTaskLimit)
	if err != nil {
		return "", fmt.Errorf("listing workspace tasks: %w", err)
	}
	if len(tasks) > 0 {
		b.WriteString("\n## Tasks\n")
		for _, t := range tasks {
			line := fmt.Sprintf("- [%s] %s", t.Status, t.Title)
			if t.DueAt != nil {
				line += " (due " + t.DueAt.Format("2006-01-02") + ")"
			}
			b.WriteString(line + "\n")
		}
	}

	now := r.now().UTC()
	events, err := r.store.ListCalendarEvents(ctx, userID, now.Add(-24*time.Hour), now.Add(contextCalendarSpan))
	if err != nil {
		return "", fmt.Errorf("listing calendar events: %w", err)
	}
	if len(events) > 0 {
		b.WriteString("\n## Calendar\n")
		for _, e := range events {
			fmt.Fprintf(&b, "- %s: %s → %s\n", e.Title,
				e.StartsAt.Format(time.RFC3339), e.EndsAt.Format(time.RFC3339))
		}
	}

	profile, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("reading profile: %w", err)
	}
	fmt.Fprintf(&b, "\n## Autonomy\nDefault level for this user: %s\n", profile.DefaultAutonomy)

	return b.String(), nil
}

package api

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SortSegmentsNewestFirst orders by creation time, newest first, falling
// back to modification time and then name.
func SortSegmentsNewestFirst(items []Segment) []Segment {
	sorted := append([]Segment(nil), items...)
	key := func(s Segment) time.Time {
		if t := ParseTime(s.CreatedAt); !t.IsZero() {
			return t
		}
		return ParseTime(s.ModifiedAt)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := key(sorted[i]), key(sorted[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return sorted[i].Name > sorted[j].Name
	})
	return sorted
}

// StateSeverity maps a supervisor state to a status line severity.
func StateSeverity(state string) string {
	switch state {
	case "running":
		return "ok"
	case "restart_requested", "terminating", "exited_cleanly":
		return "warn"
	case "exited_with_error":
		return "error"
	default:
		return "info"
	}
}

// DependencySeverity maps dependency availability to a status line severity.
func DependencySeverity(dep DependencyStatus) string {
	switch {
	case dep.Available:
		return "ok"
	case dep.Optional:
		return "warn"
	default:
		return "error"
	}
}

// CycleOutcomeLabel renders outcome plus the restart cause.
func CycleOutcomeLabel(c Cycle) string {
	label := c.Outcome
	if c.RestartSource != "" {
		label = fmt.Sprintf("%s (%s)", label, c.RestartSource)
	}
	if reason := strings.TrimSpace(c.RestartReason); reason != "" {
		label += ": " + reason
	}
	return label
}

// RelativeSince formats how long ago value happened relative to now.
func RelativeSince(value string, now time.Time) string {
	t := ParseTime(value)
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

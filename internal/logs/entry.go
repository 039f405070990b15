package logs

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"tapedeck/internal/logging"
)

// Entry is one decoded JSON log line.
type Entry struct {
	Time      time.Time
	Level     slog.Level
	Message   string
	Component string
	CycleID   string
	EventType string
	Fields    map[string]any
}

// ParseLine decodes a JSON log line written by the daemon. Lines that are
// not JSON objects report false.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, false
	}
	entry := Entry{Fields: make(map[string]any)}
	for key, value := range raw {
		switch key {
		case slog.TimeKey:
			if s, ok := value.(string); ok {
				entry.Time, _ = time.Parse(time.RFC3339Nano, s)
			}
		case slog.LevelKey:
			if s, ok := value.(string); ok {
				entry.Level = logging.ParseLevel(s)
			}
		case slog.MessageKey:
			entry.Message, _ = value.(string)
		case logging.FieldComponent:
			entry.Component, _ = value.(string)
		case logging.FieldCycleID:
			entry.CycleID, _ = value.(string)
		case logging.FieldEventType:
			entry.EventType, _ = value.(string)
		default:
			entry.Fields[key] = value
		}
	}
	return entry, true
}

// Filter narrows tailed lines. The zero value matches everything.
type Filter struct {
	Component string
	CycleID   string
	MinLevel  *slog.Level
}

// Active reports whether the filter constrains anything.
func (f Filter) Active() bool {
	return f.Component != "" || f.CycleID != "" || f.MinLevel != nil
}

// Match reports whether line passes the filter. Non-JSON lines pass only an
// inactive filter.
func (f Filter) Match(line string) bool {
	if !f.Active() {
		return true
	}
	entry, ok := ParseLine(line)
	if !ok {
		return false
	}
	if f.Component != "" && !strings.EqualFold(entry.Component, f.Component) {
		return false
	}
	if f.CycleID != "" && !strings.HasPrefix(entry.CycleID, f.CycleID) {
		return false
	}
	if f.MinLevel != nil && entry.Level < *f.MinLevel {
		return false
	}
	return true
}

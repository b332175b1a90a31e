package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Document field keys of a stored task.
const (
	FieldName        = "name"
	FieldStatus      = "status"
	FieldOwnerID     = "ownerId"
	FieldCreatedAt   = "createdAt"
	FieldDeadline    = "deadline"
	FieldCompletedAt = "completedAt"
)

// DeadlineInputLayout is the minute-precision local format used by forms.
const DeadlineInputLayout = "2006-01-02T15:04"

// Timestamp is the store-native instant. It is kept apart from plain strings
// so that a record can tell a server-written time from client text.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// NewTimestamp converts t into a store-native value.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time returns the instant in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// RawTaskRecord is a task document as delivered by the store, fields untyped.
type RawTaskRecord struct {
	ID     string
	Fields map[string]any
}

// TaskFromRecord maps a raw record into the canonical Task. It never fails:
// createdAt falls back to now, unreadable optional instants become absent and
// name/status pass through without validation.
func TaskFromRecord(raw RawTaskRecord, ownerID string, now time.Time) Task {
	task := Task{
		ID:      raw.ID,
		OwnerID: ownerID,
		Name:    stringField(raw.Fields[FieldName]),
		Status:  Status(stringField(raw.Fields[FieldStatus])),
	}

	if created, ok := nativeTime(raw.Fields[FieldCreatedAt]); ok {
		task.CreatedAt = created
	} else {
		task.CreatedAt = now
	}

	if deadline, ok := looseTime(raw.Fields[FieldDeadline]); ok {
		task.Deadline = &deadline
	}

	if completed, ok := nativeTime(raw.Fields[FieldCompletedAt]); ok {
		task.CompletedAt = &completed
	}

	return task
}

func stringField(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

// nativeTime recognizes only values the store itself writes.
func nativeTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case Timestamp:
		return t.Time(), true
	case *Timestamp:
		if t == nil {
			return time.Time{}, false
		}
		return t.Time(), true
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}

var deadlineLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	DeadlineInputLayout,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// looseTime also accepts the text and number forms deadlines were written in.
func looseTime(v any) (time.Time, bool) {
	if t, ok := nativeTime(v); ok {
		return t, true
	}
	switch t := v.(type) {
	case string:
		return ParseDeadline(t)
	case float64:
		return unixMillis(int64(t))
	case int64:
		return unixMillis(t)
	case int:
		return unixMillis(int64(t))
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return unixMillis(ms)
	default:
		return time.Time{}, false
	}
}

// unixMillis treats zero as no value.
func unixMillis(ms int64) (time.Time, bool) {
	if ms == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// ParseDeadline reads a deadline in ISO form or the form input layout.
// Layouts without a zone are read in local time.
func ParseDeadline(raw string) (time.Time, bool) {
	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDeadline renders a deadline the way it is stored.
func FormatDeadline(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

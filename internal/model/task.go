package model

import (
	"strings"
	"time"
)

// Status is the persisted completion state of a task.
type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
)

// DisplayStatus is derived on every read and never stored.
type DisplayStatus string

const (
	DisplayPending DisplayStatus = "pending"
	DisplayDone    DisplayStatus = "done"
	DisplayOverdue DisplayStatus = "overdue"
)

// Toggled returns the status a toggle moves to. Anything that is not done
// becomes done.
func (s Status) Toggled() Status {
	if s == StatusDone {
		return StatusPending
	}
	return StatusDone
}

// ParseStatus accepts user input, including the legacy "todo" spelling.
func ParseStatus(raw string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "todo":
		return StatusPending, true
	case "done":
		return StatusDone, true
	default:
		return "", false
	}
}

// Task represents a single item owned by one user.
type Task struct {
	ID          string
	OwnerID     string
	Name        string
	Status      Status
	CreatedAt   time.Time
	Deadline    *time.Time
	CompletedAt *time.Time
}

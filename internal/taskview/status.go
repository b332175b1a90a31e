// Package taskview turns the stored task set into the list a user sees.
package taskview

import (
	"time"

	"taskboard/internal/model"
)

// Resolve derives the display status of a task at the instant now.
// A done task is never overdue.
func Resolve(status model.Status, deadline *time.Time, now time.Time) model.DisplayStatus {
	if status == model.StatusDone {
		return model.DisplayDone
	}
	if deadline != nil && deadline.Before(now) {
		return model.DisplayOverdue
	}
	return model.DisplayPending
}

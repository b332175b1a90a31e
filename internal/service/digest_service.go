package service

import (
	"context"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/taskview"
)

// DueSoonWindow is how far ahead a deadline counts as upcoming.
const DueSoonWindow = 48 * time.Hour

// TaskLoader reads an owner's task set once.
type TaskLoader interface {
	LoadTasks(ctx context.Context, ownerID string) ([]model.RawTaskRecord, error)
}

// Digest summarizes the tasks that need attention.
type Digest struct {
	Overdue []taskview.View
	DueSoon []taskview.View
	Counts  taskview.Counts
}

// Empty reports whether nothing needs attention.
func (d Digest) Empty() bool {
	return len(d.Overdue) == 0 && len(d.DueSoon) == 0
}

// DigestService builds periodic reminders from the stored tasks.
type DigestService struct {
	store TaskLoader
}

func NewDigestService(store TaskLoader) *DigestService {
	return &DigestService{store: store}
}

// Build collects overdue tasks and pending tasks due within DueSoonWindow,
// both ordered by deadline.
func (s *DigestService) Build(ctx context.Context, ownerID string, now time.Time) (Digest, error) {
	records, err := s.store.LoadTasks(ctx, ownerID)
	if err != nil {
		return Digest{}, err
	}
	tasks := make([]model.Task, 0, len(records))
	for _, raw := range records {
		tasks = append(tasks, model.TaskFromRecord(raw, ownerID, now))
	}

	all := taskview.Apply(tasks, taskview.DefaultQuery(), now)
	digest := Digest{Counts: taskview.Count(all)}

	byDeadline := taskview.Query{Filter: taskview.FilterOverdue, SortKey: taskview.SortDeadline, Direction: taskview.Ascending}
	digest.Overdue = taskview.Apply(tasks, byDeadline, now)

	byDeadline.Filter = taskview.FilterPending
	for _, v := range taskview.Apply(tasks, byDeadline, now) {
		if v.DisplayStatus == model.DisplayPending && v.Deadline != nil && v.Deadline.Sub(now) <= DueSoonWindow {
			digest.DueSoon = append(digest.DueSoon, v)
		}
	}
	return digest, nil
}

package taskview

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"taskboard/internal/model"
)

// Filter selects a status bucket.
type Filter string

const (
	FilterAll     Filter = "all"
	FilterPending Filter = "pending"
	FilterDone    Filter = "done"
	FilterOverdue Filter = "overdue"
)

// Filters lists the buckets in the order UIs cycle through them.
var Filters = []Filter{FilterAll, FilterPending, FilterDone, FilterOverdue}

// SortKey is the field a list is ordered by.
type SortKey string

const (
	SortCreatedAt   SortKey = "createdAt"
	SortDeadline    SortKey = "deadline"
	SortName        SortKey = "name"
	SortCompletedAt SortKey = "completedAt"
	SortStatus      SortKey = "status"
)

// SortKeys lists the keys in the order UIs cycle through them.
var SortKeys = []SortKey{SortCreatedAt, SortDeadline, SortName, SortCompletedAt, SortStatus}

// Direction of a sort.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Flip returns the opposite direction.
func (d Direction) Flip() Direction {
	if d == Descending {
		return Ascending
	}
	return Descending
}

// Query is everything the user chose about how the list is shown.
type Query struct {
	Search    string
	Filter    Filter
	SortKey   SortKey
	Direction Direction
}

// DefaultQuery shows every task, newest first.
func DefaultQuery() Query {
	return Query{
		Filter:    FilterAll,
		SortKey:   SortCreatedAt,
		Direction: Descending,
	}
}

// View is a task annotated for display. It is produced only by Apply and
// never written back.
type View struct {
	model.Task
	DisplayStatus model.DisplayStatus
}

// Apply annotates, searches, filters and sorts tasks against a single now.
// The input slice is not modified.
func Apply(tasks []model.Task, q Query, now time.Time) []View {
	views := make([]View, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, View{
			Task:          task,
			DisplayStatus: Resolve(task.Status, task.Deadline, now),
		})
	}

	if q.Search != "" {
		term := strings.ToLower(q.Search)
		matched := views[:0]
		for _, v := range views {
			if strings.Contains(strings.ToLower(v.Name), term) {
				matched = append(matched, v)
			}
		}
		views = matched
	}

	if q.Filter != "" && q.Filter != FilterAll {
		kept := views[:0]
		for _, v := range views {
			if matchesFilter(v, q.Filter) {
				kept = append(kept, v)
			}
		}
		views = kept
	}

	sort.SliceStable(views, func(i, j int) bool {
		c := compare(views[i], views[j], q.SortKey, q.Direction)
		if c == 0 {
			return views[i].ID < views[j].ID
		}
		return c < 0
	})

	return views
}

// matchesFilter uses the stored status for pending and done, so an overdue
// task still shows under pending.
func matchesFilter(v View, f Filter) bool {
	switch f {
	case FilterOverdue:
		return v.DisplayStatus == model.DisplayOverdue
	case FilterPending:
		return v.Status == model.StatusPending
	case FilterDone:
		return v.Status == model.StatusDone
	default:
		return true
	}
}

// compare returns the three-way order of a and b, already adjusted for dir.
func compare(a, b View, key SortKey, dir Direction) int {
	desc := dir == Descending

	var c int
	switch key {
	case SortName:
		c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	case SortDeadline:
		c = compareOptional(a.Deadline, b.Deadline, desc)
	case SortCompletedAt:
		c = compareOptional(a.CompletedAt, b.CompletedAt, desc)
	case SortStatus:
		c = strings.Compare(string(a.Status), string(b.Status))
	default:
		c = a.CreatedAt.Compare(b.CreatedAt)
	}

	if desc {
		return -c
	}
	return c
}

// compareOptional treats a missing instant as +inf ascending and -inf
// descending, so after the direction flip it always lands last.
func compareOptional(a, b *time.Time, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if desc {
			return -1
		}
		return 1
	case b == nil:
		if desc {
			return 1
		}
		return -1
	default:
		return a.Compare(*b)
	}
}

// Counts tallies views per display status.
type Counts struct {
	Total   int
	Pending int
	Done    int
	Overdue int
}

// Count summarizes the display statuses of views.
func Count(views []View) Counts {
	c := Counts{Total: len(views)}
	for _, v := range views {
		switch v.DisplayStatus {
		case model.DisplayDone:
			c.Done++
		case model.DisplayOverdue:
			c.Overdue++
		default:
			c.Pending++
		}
	}
	return c
}

// ParseFilter reads a filter from user input. "todo" and "late" are
// accepted as older names of pending and overdue.
func ParseFilter(raw string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all":
		return FilterAll, nil
	case "pending", "todo":
		return FilterPending, nil
	case "done":
		return FilterDone, nil
	case "overdue", "late":
		return FilterOverdue, nil
	default:
		return "", fmt.Errorf("unknown filter %q", raw)
	}
}

// ParseSortKey reads a sort key from user input, case-insensitively.
func ParseSortKey(raw string) (SortKey, error) {
	want := strings.ToLower(strings.TrimSpace(raw))
	if want == "" {
		return SortCreatedAt, nil
	}
	for _, key := range SortKeys {
		if strings.ToLower(string(key)) == want {
			return key, nil
		}
	}
	switch want {
	case "created", "created_at":
		return SortCreatedAt, nil
	case "completed", "completed_at":
		return SortCompletedAt, nil
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}

// ParseDirection reads asc/desc in short or long form.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc", "ascending", "up":
		return Ascending, nil
	case "desc", "descending", "down":
		return Descending, nil
	default:
		return "", fmt.Errorf("unknown sort direction %q", raw)
	}
}

// Next returns the element after cur in list, wrapping around.
func Next[T comparable](list []T, cur T) T {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

package taskview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/model"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func names(views []View) []string {
	out := make([]string, 0, len(views))
	for _, v := range views {
		out = append(out, v.Name)
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		status   model.Status
		deadline *time.Time
		want     model.DisplayStatus
	}{
		{name: "pending without deadline", status: model.StatusPending, want: model.DisplayPending},
		{name: "pending future deadline", status: model.StatusPending, deadline: at(time.Hour), want: model.DisplayPending},
		{name: "pending past deadline", status: model.StatusPending, deadline: at(-time.Hour), want: model.DisplayOverdue},
		{name: "pending deadline equal to now", status: model.StatusPending, deadline: at(0), want: model.DisplayPending},
		{name: "done past deadline", status: model.StatusDone, deadline: at(-time.Hour), want: model.DisplayDone},
		{name: "done without deadline", status: model.StatusDone, want: model.DisplayDone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.status, tt.deadline, now))
		})
	}
}

func scenarioTasks() []model.Task {
	return []model.Task{
		{ID: "b", Name: "B", Status: model.StatusPending, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "a", Name: "A", Status: model.StatusPending, Deadline: at(-time.Hour), CreatedAt: now.Add(-3 * time.Hour)},
	}
}

func TestApplyNameAscending(t *testing.T) {
	views := Apply(scenarioTasks(), Query{Filter: FilterAll, SortKey: SortName, Direction: Ascending}, now)

	require.Len(t, views, 2)
	assert.Equal(t, []string{"A", "B"}, names(views))
	assert.Equal(t, model.DisplayOverdue, views[0].DisplayStatus)
	assert.Equal(t, model.DisplayPending, views[1].DisplayStatus)
}

func TestApplyOverdueFilter(t *testing.T) {
	views := Apply(scenarioTasks(), Query{Filter: FilterOverdue, SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, []string{"A"}, names(views))
}

func TestApplyPendingFilterKeepsOverdue(t *testing.T) {
	tasks := append(scenarioTasks(), model.Task{ID: "c", Name: "C", Status: model.StatusDone, CompletedAt: at(-time.Minute)})

	pending := Apply(tasks, Query{Filter: FilterPending, SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, []string{"A", "B"}, names(pending))

	overdue := Apply(tasks, Query{Filter: FilterOverdue, SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, []string{"A"}, names(overdue))

	done := Apply(tasks, Query{Filter: FilterDone, SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, []string{"C"}, names(done))
}

func TestApplySearchIsCaseInsensitive(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Name: "Apple"},
		{ID: "2", Name: "Cherry"},
		{ID: "3", Name: "banana"},
	}
	views := Apply(tasks, Query{Search: "a", SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, []string{"Apple", "banana"}, names(views))

	views = Apply(tasks, Query{Search: "APP", SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, []string{"Apple"}, names(views))
}

func TestApplyMissingDeadlineSortsLast(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Name: "none"},
		{ID: "2", Name: "soon", Deadline: at(time.Hour)},
		{ID: "3", Name: "later", Deadline: at(48 * time.Hour)},
		{ID: "4", Name: "past", Deadline: at(-time.Hour)},
	}

	asc := Apply(tasks, Query{SortKey: SortDeadline, Direction: Ascending}, now)
	assert.Equal(t, []string{"past", "soon", "later", "none"}, names(asc))

	desc := Apply(tasks, Query{SortKey: SortDeadline, Direction: Descending}, now)
	assert.Equal(t, []string{"later", "soon", "past", "none"}, names(desc))
}

func TestApplyMissingCompletedAtSortsLast(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Name: "open", Status: model.StatusPending},
		{ID: "2", Name: "first", Status: model.StatusDone, CompletedAt: at(-2 * time.Hour)},
		{ID: "3", Name: "second", Status: model.StatusDone, CompletedAt: at(-time.Hour)},
	}

	asc := Apply(tasks, Query{SortKey: SortCompletedAt, Direction: Ascending}, now)
	assert.Equal(t, []string{"first", "second", "open"}, names(asc))

	desc := Apply(tasks, Query{SortKey: SortCompletedAt, Direction: Descending}, now)
	assert.Equal(t, []string{"second", "first", "open"}, names(desc))
}

func TestApplyStatusSortIsLexicographic(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Name: "p", Status: model.StatusPending},
		{ID: "2", Name: "d", Status: model.StatusDone},
	}
	asc := Apply(tasks, Query{SortKey: SortStatus, Direction: Ascending}, now)
	assert.Equal(t, []string{"d", "p"}, names(asc))

	desc := Apply(tasks, Query{SortKey: SortStatus, Direction: Descending}, now)
	assert.Equal(t, []string{"p", "d"}, names(desc))
}

func TestApplyCreatedAtDefaultAndTies(t *testing.T) {
	tasks := []model.Task{
		{ID: "c", Name: "third", CreatedAt: now},
		{ID: "a", Name: "first", CreatedAt: now.Add(-time.Hour)},
		{ID: "b", Name: "tie", CreatedAt: now},
	}

	views := Apply(tasks, DefaultQuery(), now)
	assert.Equal(t, []string{"tie", "third", "first"}, names(views))

	views = Apply(tasks, Query{SortKey: SortCreatedAt, Direction: Ascending}, now)
	assert.Equal(t, []string{"first", "tie", "third"}, names(views))
}

func TestApplyNameSortIgnoresCase(t *testing.T) {
	tasks := []model.Task{
		{ID: "1", Name: "beta"},
		{ID: "2", Name: "Alpha"},
		{ID: "3", Name: "Gamma"},
	}
	views := Apply(tasks, Query{SortKey: SortName, Direction: Descending}, now)
	assert.Equal(t, []string{"Gamma", "beta", "Alpha"}, names(views))
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	tasks := scenarioTasks()
	_ = Apply(tasks, Query{Search: "a", Filter: FilterOverdue, SortKey: SortName, Direction: Ascending}, now)
	assert.Equal(t, "B", tasks[0].Name)
	assert.Equal(t, "A", tasks[1].Name)
}

func TestCount(t *testing.T) {
	tasks := append(scenarioTasks(), model.Task{ID: "c", Name: "C", Status: model.StatusDone})
	c := Count(Apply(tasks, DefaultQuery(), now))
	assert.Equal(t, Counts{Total: 3, Pending: 1, Done: 1, Overdue: 1}, c)
}

func TestParseInputs(t *testing.T) {
	f, err := ParseFilter("Late")
	require.NoError(t, err)
	assert.Equal(t, FilterOverdue, f)

	_, err = ParseFilter("archived")
	assert.Error(t, err)

	k, err := ParseSortKey("completedat")
	require.NoError(t, err)
	assert.Equal(t, SortCompletedAt, k)

	d, err := ParseDirection("asc")
	require.NoError(t, err)
	assert.Equal(t, Ascending, d)

	assert.Equal(t, FilterPending, Next(Filters, FilterAll))
	assert.Equal(t, FilterAll, Next(Filters, FilterOverdue))
}

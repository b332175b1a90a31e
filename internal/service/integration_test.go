package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/auth"
	"taskboard/internal/docstore"
	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/taskview"
)

type stack struct {
	store  *docstore.Store
	client *auth.Client
	ctrl   *SessionController
	tasks  *TaskService
}

func setupStack(t *testing.T) stack {
	t.Helper()

	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := docstore.New(repository.NewDocumentRepository(db), nil, "test")
	authSvc := auth.NewService(repository.NewUserRepository(db), auth.NewPasswordHasher(bcrypt.MinCost), nil)
	client := auth.NewClient(authSvc, auth.ClientOptions{})

	env := Env{Auth: client, Store: store}
	ctrl := NewSessionController(env)
	ctrl.Start()
	t.Cleanup(ctrl.Close)

	return stack{store: store, client: client, ctrl: ctrl, tasks: NewTaskService(env)}
}

func (s stack) waitFor(t *testing.T, cond func(State) bool) State {
	t.Helper()
	require.Eventually(t, func() bool { return cond(s.ctrl.State()) }, 2*time.Second, 5*time.Millisecond)
	return s.ctrl.State()
}

func TestCreateToggleDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupStack(t)

	_, err := s.client.SignUp(ctx, "ada@example.com", "correct horse", "Ada")
	require.NoError(t, err)
	s.waitFor(t, func(st State) bool { return !st.Loading })

	_, err = s.tasks.Create(ctx, TaskInput{Name: "write report"})
	require.NoError(t, err)

	state := s.waitFor(t, func(st State) bool { return len(st.Tasks) == 1 })
	task := state.Tasks[0]
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Nil(t, task.CompletedAt)
	assert.False(t, task.CreatedAt.IsZero())

	_, err = s.tasks.ToggleStatus(ctx, task)
	require.NoError(t, err)
	state = s.waitFor(t, func(st State) bool { return len(st.Tasks) == 1 && st.Tasks[0].Status == model.StatusDone })
	require.NotNil(t, state.Tasks[0].CompletedAt)

	_, err = s.tasks.ToggleStatus(ctx, state.Tasks[0])
	require.NoError(t, err)
	state = s.waitFor(t, func(st State) bool { return len(st.Tasks) == 1 && st.Tasks[0].Status == model.StatusPending })
	assert.Nil(t, state.Tasks[0].CompletedAt)
	assert.True(t, state.Tasks[0].CreatedAt.Equal(task.CreatedAt))

	require.NoError(t, s.tasks.Delete(ctx, task.ID, Confirmed))
	s.waitFor(t, func(st State) bool { return len(st.Tasks) == 0 })
}

func TestSwitchingAccountsReplacesTasks(t *testing.T) {
	ctx := context.Background()
	s := setupStack(t)

	_, err := s.client.SignInAnonymous(ctx)
	require.NoError(t, err)
	_, err = s.tasks.Create(ctx, TaskInput{Name: "guest task"})
	require.NoError(t, err)
	s.waitFor(t, func(st State) bool { return len(st.Tasks) == 1 })

	s.client.SignOut()
	assert.Empty(t, s.ctrl.State().Tasks)

	_, err = s.client.SignUp(ctx, "grace@example.com", "correct horse", "Grace")
	require.NoError(t, err)
	state := s.waitFor(t, func(st State) bool { return !st.Loading })
	assert.Empty(t, state.Tasks)
	assert.Empty(t, s.ctrl.View(taskview.DefaultQuery(), time.Now()))
}

type fakeLoader struct {
	records []model.RawTaskRecord
}

func (f fakeLoader) LoadTasks(context.Context, string) ([]model.RawTaskRecord, error) {
	return f.records, nil
}

func TestDigestBuild(t *testing.T) {
	now := time.Now()
	withDeadline := func(id string, status model.Status, d time.Duration) model.RawTaskRecord {
		r := record(id, id, status)
		r.Fields[model.FieldDeadline] = model.FormatDeadline(now.Add(d))
		return r
	}

	svc := NewDigestService(fakeLoader{records: []model.RawTaskRecord{
		withDeadline("late-2", model.StatusPending, -time.Hour),
		withDeadline("late-1", model.StatusPending, -3*time.Hour),
		withDeadline("soon", model.StatusPending, 5*time.Hour),
		withDeadline("far", model.StatusPending, 10*24*time.Hour),
		withDeadline("finished", model.StatusDone, -time.Hour),
		record("open", "open", model.StatusPending),
	}})

	digest, err := svc.Build(context.Background(), "u1", now)
	require.NoError(t, err)
	assert.False(t, digest.Empty())

	require.Len(t, digest.Overdue, 2)
	assert.Equal(t, "late-1", digest.Overdue[0].Name)
	assert.Equal(t, "late-2", digest.Overdue[1].Name)
	require.Len(t, digest.DueSoon, 1)
	assert.Equal(t, "soon", digest.DueSoon[0].Name)
	assert.Equal(t, taskview.Counts{Total: 6, Pending: 3, Done: 1, Overdue: 2}, digest.Counts)
}

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "09:30", want: "0 30 9 * * *"},
		{in: "23:59", want: "0 59 23 * * *"},
		{in: "24:00", wantErr: true},
		{in: "9", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buildDailySpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s := NewSchedulerService(time.UTC)

	_, err := s.ScheduleInterval("noop", 0, func(context.Context) error { return nil })
	assert.Error(t, err)

	_, err = s.ScheduleInterval("noop", time.Hour, func(context.Context) error { return nil })
	require.NoError(t, err)
	_, err = s.ScheduleDaily("noop", "08:00", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s.Start()
	s.Stop()
}

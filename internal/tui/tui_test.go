package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskboard/internal/auth"
	"taskboard/internal/docstore"
	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/service"
	"taskboard/internal/taskview"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupModel(t *testing.T, opts auth.ClientOptions) (Model, Deps, *clock) {
	t.Helper()

	db, err := repository.NewDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store := docstore.New(repository.NewDocumentRepository(db), nil, "test")
	svc := auth.NewService(repository.NewUserRepository(db), auth.NewPasswordHasher(bcrypt.MinCost), nil)
	client := auth.NewClient(svc, opts)
	t.Cleanup(client.Close)

	clk := &clock{now: time.Now()}
	env := service.Env{Auth: client, Store: store, Now: clk.Now}
	ctrl := service.NewSessionController(env)
	ctrl.Start()
	t.Cleanup(ctrl.Close)

	deps := Deps{
		Auth:          client,
		Ctrl:          ctrl,
		Tasks:         service.NewTaskService(env),
		GuestFallback: opts.AnonymousFallback,
		Now:           clk.Now,
	}
	return New(context.Background(), deps), deps, clk
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "ctrl+g":
		return tea.KeyMsg{Type: tea.KeyCtrlG}
	case "ctrl+f":
		return tea.KeyMsg{Type: tea.KeyCtrlF}
	case "ctrl+r":
		return tea.KeyMsg{Type: tea.KeyCtrlR}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

// run feeds msg to m and then the result of the auth or mutation command
// it returned.
func run(m Model, msg tea.Msg) Model {
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	next, _ = m.Update(cmd())
	return next.(Model)
}

func typeText(m Model, text string) Model {
	for _, r := range text {
		m = press(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

// settle waits until the controller state satisfies cond and hands it to m.
func settle(t *testing.T, m Model, deps Deps, cond func(service.State) bool) Model {
	t.Helper()
	require.Eventually(t, func() bool { return cond(deps.Ctrl.State()) }, 2*time.Second, 5*time.Millisecond)
	next, _ := m.Update(stateMsg(deps.Ctrl.State()))
	return next.(Model)
}

func loaded(n int) func(service.State) bool {
	return func(s service.State) bool { return s.Session != nil && !s.Loading && len(s.Tasks) == n }
}

func TestGuestSignInAndTaskLifecycle(t *testing.T) {
	m, deps, _ := setupModel(t, auth.ClientOptions{})
	assert.Contains(t, m.View(), "Sign in")

	m = run(m, key("ctrl+g"))
	m = settle(t, m, deps, loaded(0))
	assert.Contains(t, m.View(), "guest account")
	assert.Contains(t, m.View(), "No tasks yet")

	m = press(m, key("a"))
	require.Equal(t, modeForm, m.mode)
	m = typeText(m, "buy milk")
	m = run(m, key("enter"))
	assert.Equal(t, "Added task.", m.status)
	m = settle(t, m, deps, loaded(1))
	require.Len(t, m.views, 1)
	assert.Contains(t, m.View(), "buy milk")

	m = run(m, key("space"))
	m = settle(t, m, deps, func(s service.State) bool {
		return len(s.Tasks) == 1 && s.Tasks[0].Status == model.StatusDone
	})
	assert.Equal(t, model.DisplayDone, m.views[0].DisplayStatus)

	m = press(m, key("d"))
	require.Equal(t, modeConfirmDelete, m.mode)
	m = press(m, key("n"))
	assert.Equal(t, "Delete cancelled.", m.status)
	assert.Len(t, deps.Ctrl.State().Tasks, 1)

	m = press(m, key("d"))
	m = run(m, key("y"))
	m = settle(t, m, deps, loaded(0))
	assert.Empty(t, m.views)

	m = press(m, key("o"))
	assert.Nil(t, m.state.Session)
	assert.Contains(t, m.View(), "Sign in")
}

func TestRegisterAndEdit(t *testing.T) {
	m, deps, _ := setupModel(t, auth.ClientOptions{})

	m = press(m, key("ctrl+r"))
	assert.Contains(t, m.View(), "Create an account")
	m = typeText(m, "ada@example.com")
	m = press(m, key("tab"))
	m = typeText(m, "correct horse")
	m = run(m, key("enter"))
	m = settle(t, m, deps, loaded(0))
	assert.Contains(t, m.View(), "ada@example.com")

	_, err := deps.Tasks.Create(context.Background(), service.TaskInput{Name: "draft"})
	require.NoError(t, err)
	m = settle(t, m, deps, loaded(1))

	m = press(m, key("e"))
	require.Equal(t, modeForm, m.mode)
	m = typeText(m, " v2")
	m = press(m, key("tab"))
	m = typeText(m, "2030-01-02T18:00")
	m = run(m, key("enter"))
	assert.Equal(t, "Saved changes.", m.status)

	m = settle(t, m, deps, func(s service.State) bool {
		return len(s.Tasks) == 1 && s.Tasks[0].Name == "draft v2" && s.Tasks[0].Deadline != nil
	})
	assert.Equal(t, 2030, m.views[0].Deadline.Year())
}

func TestSignInErrors(t *testing.T) {
	m, _, _ := setupModel(t, auth.ClientOptions{})

	m = press(m, key("enter"))
	assert.Equal(t, "Email and password are required.", m.status)

	m = typeText(m, "nobody@example.com")
	m = press(m, key("tab"))
	m = typeText(m, "whatever1")
	m = run(m, key("enter"))
	assert.Equal(t, "Wrong email or password.", m.status)
	assert.Nil(t, m.state.Session)
}

func TestFederatedFallsBackToGuest(t *testing.T) {
	m, deps, _ := setupModel(t, auth.ClientOptions{AnonymousFallback: true, FallbackDelay: 10 * time.Millisecond})

	m = run(m, key("ctrl+f"))
	assert.Contains(t, m.status, "Continuing as guest")

	m = settle(t, m, deps, loaded(0))
	require.NotNil(t, m.state.Session)
	assert.True(t, m.state.Session.Anonymous)
}

func TestFormValidation(t *testing.T) {
	m, deps, _ := setupModel(t, auth.ClientOptions{})
	m = run(m, key("ctrl+g"))
	m = settle(t, m, deps, loaded(0))

	m = press(m, key("a"))
	m = typeText(m, "call mom")
	m = press(m, key("tab"))
	m = typeText(m, "soon")
	m = press(m, key("enter"))
	assert.Equal(t, modeForm, m.mode)
	assert.Contains(t, m.status, "deadline must look like")

	m = press(m, key("esc"))
	assert.Equal(t, modeBrowse, m.mode)

	m = press(m, key("a"))
	m = run(m, key("enter"))
	assert.Equal(t, "Task name cannot be empty.", m.status)
	assert.Empty(t, deps.Ctrl.State().Tasks)
}

func TestQueryControls(t *testing.T) {
	m, deps, _ := setupModel(t, auth.ClientOptions{})
	m = run(m, key("ctrl+g"))
	m = settle(t, m, deps, loaded(0))

	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := deps.Tasks.Create(context.Background(), service.TaskInput{Name: name})
		require.NoError(t, err)
	}
	m = settle(t, m, deps, loaded(3))

	m = press(m, key("f"))
	assert.Equal(t, taskview.Next(taskview.Filters, taskview.FilterAll), m.query.Filter)
	m = press(m, key("s"))
	assert.Equal(t, taskview.Next(taskview.SortKeys, taskview.SortCreatedAt), m.query.SortKey)
	m = press(m, key("r"))
	assert.Equal(t, taskview.Ascending, m.query.Direction)

	m = press(m, key("/"))
	require.Equal(t, modeSearch, m.mode)
	m = typeText(m, "AL")
	m = press(m, key("enter"))
	assert.Equal(t, modeBrowse, m.mode)
	assert.Equal(t, "AL", m.query.Search)

	m.query.Filter = taskview.FilterAll
	m.refresh()
	require.Len(t, m.views, 1)
	assert.Equal(t, "alpha", m.views[0].Name)

	m = press(m, key("/"))
	m = press(m, key("esc"))
	assert.Empty(t, m.query.Search)
	assert.Len(t, m.views, 3)
}

func TestTickMarksOverdue(t *testing.T) {
	m, deps, clk := setupModel(t, auth.ClientOptions{})
	m = run(m, key("ctrl+g"))
	m = settle(t, m, deps, loaded(0))

	deadline := clk.Now().Add(30 * time.Minute)
	_, err := deps.Tasks.Create(context.Background(), service.TaskInput{Name: "pay rent", Deadline: &deadline})
	require.NoError(t, err)
	m = settle(t, m, deps, loaded(1))
	assert.Equal(t, model.DisplayPending, m.views[0].DisplayStatus)

	clk.advance(time.Hour)
	next, cmd := m.Update(tickMsg(clk.Now()))
	m = next.(Model)
	assert.NotNil(t, cmd)
	assert.Equal(t, model.DisplayOverdue, m.views[0].DisplayStatus)
}

func TestSessionChangeResetsListScreen(t *testing.T) {
	m, deps, _ := setupModel(t, auth.ClientOptions{})
	m = run(m, key("ctrl+g"))
	m = settle(t, m, deps, loaded(0))

	m = press(m, key("a"))
	require.Equal(t, modeForm, m.mode)

	deps.Auth.SignOut()
	next, _ := m.Update(stateMsg(deps.Ctrl.State()))
	m = next.(Model)
	assert.Equal(t, modeBrowse, m.mode)
	assert.Nil(t, m.form)
}

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"taskboard/internal/auth"
	"taskboard/internal/model"
	"taskboard/internal/service"
	"taskboard/internal/taskview"
)

// Deps wire one terminal client to the shared core.
type Deps struct {
	Auth         *auth.Client
	Ctrl         *service.SessionController
	Tasks        *service.TaskService
	Query        taskview.Query
	InitialToken string
	// GuestFallback mirrors auth.ClientOptions.AnonymousFallback.
	GuestFallback bool
	Now           func() time.Time
}

type mode int

const (
	modeBrowse mode = iota
	modeSearch
	modeForm
	modeConfirmDelete
)

type (
	stateMsg service.State
	tickMsg  time.Time

	authMsg struct {
		session *model.Session
		err     error
	}

	mutationMsg struct {
		done string
		err  error
	}
)

// formState backs the add and edit form. taskID is empty when adding.
type formState struct {
	taskID   string
	name     textinput.Model
	deadline textinput.Model
	focus    int
}

type Model struct {
	deps   Deps
	ctx    context.Context
	state  service.State
	query  taskview.Query
	now    time.Time
	views  []taskview.View
	cursor int
	mode   mode
	status string
	width  int

	email    textinput.Model
	password textinput.Model
	focus    int
	register bool

	search     textinput.Model
	form       *formState
	pendingDel *taskview.View
}

// Run starts the terminal client and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, deps Deps) error {
	m := New(ctx, deps)
	program := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())

	changed := make(chan struct{}, 1)
	stop := deps.Ctrl.OnChange(func(service.State) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer stop()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-changed:
				program.Send(stateMsg(deps.Ctrl.State()))
			}
		}
	}()

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func New(ctx context.Context, deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Query.SortKey == "" {
		deps.Query = taskview.DefaultQuery()
	}

	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 254
	email.Width = 40
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 72
	password.Width = 40
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	search := textinput.New()
	search.Placeholder = "search by name"
	search.CharLimit = 128
	search.Width = 40

	m := Model{
		deps:     deps,
		ctx:      ctx,
		state:    deps.Ctrl.State(),
		query:    deps.Query,
		now:      deps.Now(),
		email:    email,
		password: password,
		search:   search,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, tick()}
	if token := strings.TrimSpace(m.deps.InitialToken); token != "" {
		cmds = append(cmds, m.authCmd(func(ctx context.Context) (*model.Session, error) {
			return m.deps.Auth.SignInWithToken(ctx, token)
		}))
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(time.Minute, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		m.applyState(service.State(msg))
		return m, nil
	case tickMsg:
		m.now = m.deps.Now()
		m.refresh()
		return m, tick()
	case authMsg:
		if msg.err != nil {
			m.status = auth.Message(msg.err)
			if m.deps.GuestFallback && errors.Is(msg.err, auth.ErrFederatedUnavailable) {
				m.status += " Continuing as guest…"
			}
			return m, nil
		}
		m.password.SetValue("")
		m.status = "Signed in as " + msg.session.Label()
		m.applyState(m.deps.Ctrl.State())
		return m, nil
	case mutationMsg:
		if msg.err != nil {
			m.status = mutationFailure(msg.err)
		} else {
			m.status = msg.done
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.search.Width = clampWidth(msg.Width - 20)
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.state.Session == nil {
			return m.updateSignIn(msg)
		}
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeForm:
			return m.updateForm(msg)
		case modeConfirmDelete:
			return m.updateDeleteConfirm(msg.String())
		default:
			return m.updateBrowse(msg.String())
		}
	}
	return m, nil
}

// applyState takes a new snapshot. A session change resets the list screen.
func (m *Model) applyState(state service.State) {
	if ownerOf(m.state.Session) != ownerOf(state.Session) {
		m.mode = modeBrowse
		m.form = nil
		m.pendingDel = nil
		m.cursor = 0
	}
	m.state = state
	m.refresh()
}

func ownerOf(s *model.Session) string {
	if s == nil {
		return ""
	}
	return s.OwnerID
}

func (m *Model) refresh() {
	m.views = taskview.Apply(m.state.Tasks, m.query, m.now)
	m.cursor = clampCursor(m.cursor, len(m.views))
}

func (m Model) updateSignIn(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		m.focus = 1 - m.focus
		if m.focus == 0 {
			m.email.Focus()
			m.password.Blur()
		} else {
			m.password.Focus()
			m.email.Blur()
		}
		return m, nil
	case "ctrl+r":
		m.register = !m.register
		m.status = ""
		return m, nil
	case "ctrl+g":
		m.status = "Signing in as guest…"
		return m, m.authCmd(m.deps.Auth.SignInAnonymous)
	case "ctrl+f":
		m.status = "Contacting identity provider…"
		return m, m.authCmd(func(ctx context.Context) (*model.Session, error) {
			return m.deps.Auth.SignInFederated(ctx, nil)
		})
	case "enter":
		email, password := strings.TrimSpace(m.email.Value()), m.password.Value()
		if email == "" || password == "" {
			m.status = "Email and password are required."
			return m, nil
		}
		if m.register {
			m.status = "Creating account…"
			return m, m.authCmd(func(ctx context.Context) (*model.Session, error) {
				return m.deps.Auth.SignUp(ctx, email, password, "")
			})
		}
		m.status = "Signing in…"
		return m, m.authCmd(func(ctx context.Context) (*model.Session, error) {
			return m.deps.Auth.SignIn(ctx, email, password)
		})
	}

	var cmd tea.Cmd
	if m.focus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m Model) updateBrowse(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q":
		return m, tea.Quit
	case "down", "j":
		m.cursor = clampCursor(m.cursor+1, len(m.views))
	case "up", "k":
		m.cursor = clampCursor(m.cursor-1, len(m.views))
	case "/":
		m.mode = modeSearch
		m.search.SetValue(m.query.Search)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "f":
		m.query.Filter = taskview.Next(taskview.Filters, m.query.Filter)
		m.refresh()
	case "s":
		m.query.SortKey = taskview.Next(taskview.SortKeys, m.query.SortKey)
		m.refresh()
	case "r":
		m.query.Direction = m.query.Direction.Flip()
		m.refresh()
	case "a":
		m.form = newForm("", "", nil)
		m.mode = modeForm
		m.status = "New task: enter saves, tab switches fields, esc cancels."
	case "e":
		v, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.form = newForm(v.ID, v.Name, v.Deadline)
		m.mode = modeForm
		m.status = "Edit task: enter saves, tab switches fields, esc cancels."
	case " ", "x":
		v, ok := m.selected()
		if !ok {
			return m, nil
		}
		task := v.Task
		return m, m.mutationCmd(func(ctx context.Context) (string, error) {
			next, err := m.deps.Tasks.ToggleStatus(ctx, task)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Marked %q %s.", task.Name, next), nil
		})
	case "d":
		v, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.pendingDel = &v
		m.mode = modeConfirmDelete
		m.status = fmt.Sprintf("Delete %q? y/n", v.Name)
	case "o":
		m.deps.Auth.SignOut()
		m.status = "Signed out."
		m.applyState(m.deps.Ctrl.State())
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		m.mode = modeBrowse
		m.search.Blur()
		if msg.String() == "esc" {
			m.search.SetValue("")
			m.query.Search = ""
			m.refresh()
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.query.Search = m.search.Value()
	m.refresh()
	return m, cmd
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.form
	switch msg.String() {
	case "esc":
		m.form = nil
		m.mode = modeBrowse
		m.status = "Cancelled."
		return m, nil
	case "tab", "shift+tab":
		f.focus = 1 - f.focus
		if f.focus == 0 {
			f.deadline.Blur()
			return m, f.name.Focus()
		}
		f.name.Blur()
		return m, f.deadline.Focus()
	case "enter":
		input, err := f.input()
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		id := f.taskID
		m.form = nil
		m.mode = modeBrowse
		if id == "" {
			return m, m.mutationCmd(func(ctx context.Context) (string, error) {
				if _, err := m.deps.Tasks.Create(ctx, input); err != nil {
					return "", err
				}
				return "Added task.", nil
			})
		}
		return m, m.mutationCmd(func(ctx context.Context) (string, error) {
			if err := m.deps.Tasks.Update(ctx, id, input); err != nil {
				return "", err
			}
			return "Saved changes.", nil
		})
	}

	var cmd tea.Cmd
	if f.focus == 0 {
		f.name, cmd = f.name.Update(msg)
	} else {
		f.deadline, cmd = f.deadline.Update(msg)
	}
	return m, cmd
}

func (m Model) updateDeleteConfirm(key string) (tea.Model, tea.Cmd) {
	v := m.pendingDel
	m.pendingDel = nil
	m.mode = modeBrowse
	if v == nil {
		return m, nil
	}
	switch key {
	case "y", "Y":
		id, name := v.ID, v.Name
		return m, m.mutationCmd(func(ctx context.Context) (string, error) {
			if err := m.deps.Tasks.Delete(ctx, id, service.Confirmed); err != nil {
				return "", err
			}
			return fmt.Sprintf("Deleted %q.", name), nil
		})
	default:
		m.status = "Delete cancelled."
		return m, nil
	}
}

func (m Model) selected() (taskview.View, bool) {
	if len(m.views) == 0 {
		return taskview.View{}, false
	}
	return m.views[clampCursor(m.cursor, len(m.views))], true
}

func (m Model) authCmd(fn func(context.Context) (*model.Session, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		session, err := fn(ctx)
		return authMsg{session: session, err: err}
	}
}

func (m Model) mutationCmd(fn func(context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		done, err := fn(ctx)
		return mutationMsg{done: done, err: err}
	}
}

func newForm(id, name string, deadline *time.Time) *formState {
	nameInput := textinput.New()
	nameInput.Placeholder = "task name"
	nameInput.CharLimit = 256
	nameInput.Width = 40
	nameInput.SetValue(name)
	nameInput.CursorEnd()
	nameInput.Focus()

	deadlineInput := textinput.New()
	deadlineInput.Placeholder = model.DeadlineInputLayout + " (optional)"
	deadlineInput.CharLimit = len(model.DeadlineInputLayout)
	deadlineInput.Width = 40
	if deadline != nil {
		deadlineInput.SetValue(deadline.In(time.Local).Format(model.DeadlineInputLayout))
	}

	return &formState{taskID: id, name: nameInput, deadline: deadlineInput}
}

func (f *formState) input() (service.TaskInput, error) {
	input := service.TaskInput{Name: f.name.Value()}
	if raw := strings.TrimSpace(f.deadline.Value()); raw != "" {
		d, ok := model.ParseDeadline(raw)
		if !ok {
			return input, fmt.Errorf("deadline must look like %s", model.DeadlineInputLayout)
		}
		input.Deadline = &d
	}
	return input, nil
}

func mutationFailure(err error) string {
	switch {
	case errors.Is(err, service.ErrEmptyName):
		return "Task name cannot be empty."
	case errors.Is(err, service.ErrNoSession):
		return "Sign in first."
	default:
		return service.StoreFailureNotice
	}
}

func clampCursor(cur, n int) int {
	if n <= 0 || cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}

func clampWidth(w int) int {
	if w < 20 {
		return 20
	}
	return w
}

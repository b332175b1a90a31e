package service

import (
	"log"
	"sync"
	"time"

	"taskboard/internal/model"
	"taskboard/internal/taskview"
)

// State is what a UI renders from.
type State struct {
	Session *model.Session
	Tasks   []model.Task
	Loading bool
	// Err is the last subscription error. Tasks keep their last value.
	Err error
}

// SessionController owns the in-memory task set of one client and keeps
// it bound to whoever is signed in. Each snapshot replaces the whole set;
// a sign-out clears it.
type SessionController struct {
	env Env

	deliverMu sync.Mutex
	mu        sync.Mutex
	session   *model.Session
	tasks     []model.Task
	loading   bool
	err       error
	gen       uint64
	release   func()
	stopAuth  func()
	closed    bool
	listeners map[int]func(State)
	nextID    int
}

// NewSessionController returns a controller that reports loading until
// the first session notification arrives.
func NewSessionController(env Env) *SessionController {
	return &SessionController{
		env:       env,
		loading:   true,
		listeners: make(map[int]func(State)),
	}
}

// Start listens for session changes.
func (c *SessionController) Start() {
	stop := c.env.Auth.OnSessionChange(c.handleSession)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		stop()
		return
	}
	c.stopAuth = stop
}

// Close releases the subscription and the session listener.
func (c *SessionController) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	release, stopAuth := c.detachLocked(), c.stopAuth
	c.stopAuth = nil
	c.listeners = make(map[int]func(State))
	c.mu.Unlock()

	if release != nil {
		release()
	}
	if stopAuth != nil {
		stopAuth()
	}
}

// OnChange registers cb for every state change.
func (c *SessionController) OnChange(cb func(State)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// State returns a copy of the current state.
func (c *SessionController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// View runs the pipeline over the current task set.
func (c *SessionController) View(q taskview.Query, now time.Time) []taskview.View {
	c.mu.Lock()
	tasks := c.tasks
	c.mu.Unlock()
	return taskview.Apply(tasks, q, now)
}

func (c *SessionController) handleSession(session *model.Session) {
	c.deliverMu.Lock()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.deliverMu.Unlock()
		return
	}

	if session != nil && c.session != nil && c.session.OwnerID == session.OwnerID && c.release != nil {
		c.session = session
		c.notifyLocked()
		c.deliverMu.Unlock()
		return
	}

	release := c.detachLocked()
	c.tasks = nil
	c.err = nil
	c.session = session
	c.loading = session != nil
	gen := c.gen
	c.notifyLocked()
	c.deliverMu.Unlock()

	if release != nil {
		release()
	}
	if session == nil {
		log.Printf("[info] signed out, task set cleared")
		return
	}

	owner := session.OwnerID
	log.Printf("[info] subscribing to tasks owner=%s", owner)
	unsubscribe := c.env.Store.SubscribeTasks(owner,
		func(records []model.RawTaskRecord) { c.handleSnapshot(gen, owner, records) },
		func(err error) { c.handleError(gen, err) },
	)

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.release = unsubscribe
	c.mu.Unlock()
}

func (c *SessionController) handleSnapshot(gen uint64, owner string, records []model.RawTaskRecord) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	now := c.env.now()
	tasks := make([]model.Task, 0, len(records))
	for _, raw := range records {
		tasks = append(tasks, model.TaskFromRecord(raw, owner, now))
	}
	c.tasks = tasks
	c.loading = false
	c.err = nil
	c.notifyLocked()
}

func (c *SessionController) handleError(gen uint64, err error) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	log.Printf("[warn] task subscription: %v", err)
	c.loading = false
	c.err = err
	c.notifyLocked()
}

// detachLocked invalidates the current subscription and returns its
// release func for the caller to run without the lock.
func (c *SessionController) detachLocked() func() {
	c.gen++
	release := c.release
	c.release = nil
	return release
}

// notifyLocked unlocks c.mu and then calls listeners with the new state.
func (c *SessionController) notifyLocked() {
	state := c.stateLocked()
	listeners := make([]func(State), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if cb, ok := c.listeners[id]; ok {
			listeners = append(listeners, cb)
		}
	}
	c.mu.Unlock()

	for _, cb := range listeners {
		cb(state)
	}
}

func (c *SessionController) stateLocked() State {
	state := State{
		Loading: c.loading,
		Err:     c.err,
	}
	if c.session != nil {
		s := *c.session
		state.Session = &s
	}
	if c.tasks != nil {
		state.Tasks = append([]model.Task(nil), c.tasks...)
	}
	return state
}

package service

import (
	"context"
	"sync"

	"taskboard/internal/docstore"
	"taskboard/internal/model"
)

type fakeAuth struct {
	mu        sync.Mutex
	current   *model.Session
	listeners map[int]func(*model.Session)
	next      int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{listeners: make(map[int]func(*model.Session))}
}

func (a *fakeAuth) Current() *model.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *fakeAuth) OnSessionChange(cb func(*model.Session)) func() {
	a.mu.Lock()
	id := a.next
	a.next++
	a.listeners[id] = cb
	current := a.current
	a.mu.Unlock()
	cb(current)
	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *fakeAuth) listenerCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.listeners)
}

func (a *fakeAuth) signIn(owner string) {
	a.set(&model.Session{OwnerID: owner})
}

func (a *fakeAuth) set(s *model.Session) {
	a.mu.Lock()
	a.current = s
	var cbs []func(*model.Session)
	for i := 0; i < a.next; i++ {
		if cb, ok := a.listeners[i]; ok {
			cbs = append(cbs, cb)
		}
	}
	a.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

type fakeSub struct {
	owner      string
	onSnapshot func([]model.RawTaskRecord)
	onError    func(error)
	active     bool
}

type write struct {
	op     string
	owner  string
	id     string
	fields docstore.Fields
}

// fakeStore records writes and lets tests deliver snapshots by hand.
type fakeStore struct {
	mu     sync.Mutex
	subs   []*fakeSub
	writes []write
	fail   error
}

func (s *fakeStore) SubscribeTasks(owner string, onSnapshot func([]model.RawTaskRecord), onError func(error)) func() {
	s.mu.Lock()
	sub := &fakeSub{owner: owner, onSnapshot: onSnapshot, onError: onError, active: true}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		sub.active = false
		s.mu.Unlock()
	}
}

func (s *fakeStore) CreateTask(_ context.Context, owner string, fields docstore.Fields) (string, error) {
	return "new-id", s.record(write{op: "create", owner: owner, fields: fields})
}

func (s *fakeStore) UpdateTask(_ context.Context, owner, id string, fields docstore.Fields) error {
	return s.record(write{op: "update", owner: owner, id: id, fields: fields})
}

func (s *fakeStore) DeleteTask(_ context.Context, owner, id string) error {
	return s.record(write{op: "delete", owner: owner, id: id})
}

func (s *fakeStore) record(w write) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.writes = append(s.writes, w)
	return nil
}

func (s *fakeStore) active() []*fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeSub
	for _, sub := range s.subs {
		if sub.active {
			out = append(out, sub)
		}
	}
	return out
}

func (s *fakeStore) all() []*fakeSub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeSub(nil), s.subs...)
}

func (s *fakeStore) deliver(owner string, records ...model.RawTaskRecord) {
	for _, sub := range s.active() {
		if sub.owner == owner {
			sub.onSnapshot(records)
		}
	}
}

func (s *fakeStore) failSubscription(owner string, err error) {
	for _, sub := range s.active() {
		if sub.owner == owner {
			sub.onError(err)
		}
	}
}

func (s *fakeStore) written() []write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]write(nil), s.writes...)
}

func record(id, name string, status model.Status) model.RawTaskRecord {
	return model.RawTaskRecord{ID: id, Fields: map[string]any{
		model.FieldName:   name,
		model.FieldStatus: string(status),
	}}
}

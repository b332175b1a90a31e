package service

import (
	"context"
	"time"

	"taskboard/internal/docstore"
	"taskboard/internal/model"
)

// TaskStore is the document store the core reads from and writes to.
type TaskStore interface {
	SubscribeTasks(ownerID string, onSnapshot func([]model.RawTaskRecord), onError func(error)) (unsubscribe func())
	CreateTask(ctx context.Context, ownerID string, fields docstore.Fields) (string, error)
	UpdateTask(ctx context.Context, ownerID, id string, fields docstore.Fields) error
	DeleteTask(ctx context.Context, ownerID, id string) error
}

// SessionSource reports who is signed in.
type SessionSource interface {
	Current() *model.Session
	OnSessionChange(cb func(*model.Session)) (unsubscribe func())
}

// Env carries the collaborators of one client. It is built once at startup
// and handed to the controller and the task service.
type Env struct {
	Auth  SessionSource
	Store TaskStore
	Now   func() time.Time
}

func (e Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

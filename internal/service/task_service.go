package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"taskboard/internal/docstore"
	"taskboard/internal/model"
)

var (
	// ErrNoSession means nobody is signed in; nothing was written.
	ErrNoSession = errors.New("not signed in")
	// ErrEmptyName means the name was blank after trimming; nothing was written.
	ErrEmptyName = errors.New("task name is required")
	// ErrNotConfirmed means the user declined a delete.
	ErrNotConfirmed = errors.New("delete not confirmed")
	// ErrStoreWrite wraps any failed write.
	ErrStoreWrite = errors.New("store write failed")
)

// StoreFailureNotice is what users see when a write fails.
const StoreFailureNotice = "Could not save your changes. Please try again."

// TaskInput is the editable part of a task.
type TaskInput struct {
	Name     string
	Deadline *time.Time
}

// ConfirmFunc asks the user to approve an irreversible action.
type ConfirmFunc func(ctx context.Context) bool

// Confirmed is used when the UI already collected the confirmation.
func Confirmed(context.Context) bool { return true }

// TaskService turns user intents into store writes. It never touches the
// in-memory task set; changes show up through the next snapshot.
type TaskService struct {
	env Env
}

func NewTaskService(env Env) *TaskService {
	return &TaskService{env: env}
}

// Create writes a new pending task and returns its id.
func (s *TaskService) Create(ctx context.Context, input TaskInput) (string, error) {
	session, name, err := s.validate(input)
	if err != nil {
		return "", err
	}

	fields := docstore.Fields{
		model.FieldName:      name,
		model.FieldOwnerID:   session.OwnerID,
		model.FieldStatus:    model.StatusPending,
		model.FieldCreatedAt: docstore.ServerTimestamp,
	}
	if input.Deadline != nil {
		fields[model.FieldDeadline] = model.FormatDeadline(*input.Deadline)
	}

	id, err := s.env.Store.CreateTask(ctx, session.OwnerID, fields)
	if err != nil {
		return "", storeError("create task", err)
	}
	log.Printf("[info] task created id=%s owner=%s", id, session.OwnerID)
	return id, nil
}

// Update rewrites name, deadline and owner only.
func (s *TaskService) Update(ctx context.Context, id string, input TaskInput) error {
	session, name, err := s.validate(input)
	if err != nil {
		return err
	}

	fields := docstore.Fields{
		model.FieldName:     name,
		model.FieldOwnerID:  session.OwnerID,
		model.FieldDeadline: nil,
	}
	if input.Deadline != nil {
		fields[model.FieldDeadline] = model.FormatDeadline(*input.Deadline)
	}

	if err := s.env.Store.UpdateTask(ctx, session.OwnerID, id, fields); err != nil {
		return storeError("update task", err)
	}
	log.Printf("[info] task updated id=%s owner=%s", id, session.OwnerID)
	return nil
}

// ToggleStatus flips done/pending and sets or clears completedAt in the
// same write. It returns the new status.
func (s *TaskService) ToggleStatus(ctx context.Context, task model.Task) (model.Status, error) {
	session := s.env.Auth.Current()
	if session == nil {
		return task.Status, ErrNoSession
	}

	next := task.Status.Toggled()
	fields := docstore.Fields{
		model.FieldStatus:      next,
		model.FieldCompletedAt: nil,
	}
	if next == model.StatusDone {
		fields[model.FieldCompletedAt] = docstore.ServerTimestamp
	}

	if err := s.env.Store.UpdateTask(ctx, session.OwnerID, task.ID, fields); err != nil {
		return task.Status, storeError("toggle task", err)
	}
	log.Printf("[info] task toggled id=%s status=%s owner=%s", task.ID, next, session.OwnerID)
	return next, nil
}

// Delete removes a task for good once confirm approves it.
func (s *TaskService) Delete(ctx context.Context, id string, confirm ConfirmFunc) error {
	session := s.env.Auth.Current()
	if session == nil {
		return ErrNoSession
	}
	if confirm == nil || !confirm(ctx) {
		return ErrNotConfirmed
	}

	if err := s.env.Store.DeleteTask(ctx, session.OwnerID, id); err != nil {
		return storeError("delete task", err)
	}
	log.Printf("[info] task deleted id=%s owner=%s", id, session.OwnerID)
	return nil
}

func (s *TaskService) validate(input TaskInput) (*model.Session, string, error) {
	session := s.env.Auth.Current()
	if session == nil {
		return nil, "", ErrNoSession
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, "", ErrEmptyName
	}
	return session, name, nil
}

func storeError(op string, err error) error {
	log.Printf("[warn] %s: %v", op, err)
	return fmt.Errorf("%s: %w: %w", op, ErrStoreWrite, err)
}

// Package docstore keeps per-owner task documents and streams full
// snapshots of them to subscribers.
package docstore

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskboard/internal/model"
	"taskboard/internal/repository"
)

// Store is the task document store.
type Store struct {
	docs  *repository.DocumentRepository
	feed  Feed
	appID string
	now   func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the clock used for ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store. A nil feed notifies only this process.
func New(docs *repository.DocumentRepository, feed Feed, appID string, opts ...Option) *Store {
	if feed == nil {
		feed = NewLocalFeed()
	}
	s := &Store{
		docs:  docs,
		feed:  feed,
		appID: appID,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CollectionPath is where an owner's tasks live.
func (s *Store) CollectionPath(ownerID string) string {
	return fmt.Sprintf("artifacts/%s/users/%s/tasks", s.appID, ownerID)
}

// CreateTask stores a new task document and returns its id.
func (s *Store) CreateTask(ctx context.Context, ownerID string, fields Fields) (string, error) {
	set, _, err := encodeFields(fields, s.now())
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	body, err := mergeBody("", set, nil)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	collection := s.CollectionPath(ownerID)
	doc := &model.Document{
		Collection: collection,
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Body:       body,
	}
	if err := s.docs.Insert(ctx, doc); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	s.feed.Publish(collection)
	return doc.ID, nil
}

// UpdateTask merges fields into an existing task. Fields not named are kept.
func (s *Store) UpdateTask(ctx context.Context, ownerID, id string, fields Fields) error {
	set, unset, err := encodeFields(fields, s.now())
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	collection := s.CollectionPath(ownerID)
	err = s.docs.Patch(ctx, collection, id, func(body string) (string, error) {
		return mergeBody(body, set, unset)
	})
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	s.feed.Publish(collection)
	return nil
}

// DeleteTask removes a task permanently.
func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	collection := s.CollectionPath(ownerID)
	if err := s.docs.Delete(ctx, collection, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	s.feed.Publish(collection)
	return nil
}

// LoadTasks reads the owner's current task set once.
func (s *Store) LoadTasks(ctx context.Context, ownerID string) ([]model.RawTaskRecord, error) {
	docs, err := s.docs.List(ctx, s.CollectionPath(ownerID))
	if err != nil {
		return nil, err
	}
	records := make([]model.RawTaskRecord, 0, len(docs))
	for _, doc := range docs {
		fields, err := decodeBody(doc.Body)
		if err != nil {
			log.Printf("[warn] skip document %s: %v", doc.ID, err)
			continue
		}
		records = append(records, model.RawTaskRecord{ID: doc.ID, Fields: fields})
	}
	return records, nil
}

// Owners lists every owner with at least one stored task.
func (s *Store) Owners(ctx context.Context) ([]string, error) {
	return s.docs.Owners(ctx)
}

// SubscribeTasks delivers the owner's full task set right away and again
// after every change. Deliveries are sequential and always carry the latest
// state; bursts of changes may collapse into one snapshot. Read failures go
// to onError and the subscription stays open. The returned func stops the
// subscription and may be called more than once.
func (s *Store) SubscribeTasks(ownerID string, onSnapshot func([]model.RawTaskRecord), onError func(error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	sub.poke()

	stopWatch := s.feed.Watch(s.CollectionPath(ownerID), sub.poke)

	go sub.run(func() {
		records, err := s.LoadTasks(ctx, ownerID)
		if sub.closed() {
			return
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onSnapshot(records)
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stopWatch()
			close(sub.done)
			cancel()
		})
	}
}

type subscription struct {
	notify chan struct{}
	done   chan struct{}
}

// poke schedules a delivery. A pending delivery absorbs further pokes.
func (s *subscription) poke() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) run(deliver func()) {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
			deliver()
		}
	}
}

package docstore

import "sync"

// Feed tells watchers that a collection changed. Notifications carry no
// payload; watchers re-read the collection.
type Feed interface {
	Publish(collection string)
	Watch(collection string, notify func()) (stop func())
}

type watcher struct {
	notify func()
}

// LocalFeed fans change notifications out to watchers in this process.
type LocalFeed struct {
	mu       sync.RWMutex
	watchers map[string]map[*watcher]struct{}
}

func NewLocalFeed() *LocalFeed {
	return &LocalFeed{watchers: make(map[string]map[*watcher]struct{})}
}

// Publish calls every watcher of collection. notify must not block.
func (f *LocalFeed) Publish(collection string) {
	f.mu.RLock()
	targets := make([]*watcher, 0, len(f.watchers[collection]))
	for w := range f.watchers[collection] {
		targets = append(targets, w)
	}
	f.mu.RUnlock()

	for _, w := range targets {
		w.notify()
	}
}

func (f *LocalFeed) Watch(collection string, notify func()) func() {
	w := &watcher{notify: notify}

	f.mu.Lock()
	set, ok := f.watchers[collection]
	if !ok {
		set = make(map[*watcher]struct{})
		f.watchers[collection] = set
	}
	set[w] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.watchers[collection], w)
			if len(f.watchers[collection]) == 0 {
				delete(f.watchers, collection)
			}
		})
	}
}

// Watchers reports how many watchers a collection has.
func (f *LocalFeed) Watchers(collection string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.watchers[collection])
}

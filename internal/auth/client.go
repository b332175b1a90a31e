package auth

import (
	"context"
	"log"
	"sync"
	"time"

	"taskboard/internal/model"
)

// DefaultFallbackDelay is how long a failed federated sign-in waits before
// continuing as a guest.
const DefaultFallbackDelay = time.Second

// ClientOptions tune a Client.
type ClientOptions struct {
	// AnonymousFallback signs in as a guest after a federated failure.
	AnonymousFallback bool
	FallbackDelay     time.Duration
}

// Client holds the session of one UI client and notifies listeners when it
// changes. Listeners run one at a time in the order changes happened and
// must not call back into the Client synchronously.
type Client struct {
	svc  *Service
	opts ClientOptions

	deliverMu sync.Mutex
	mu        sync.Mutex
	current   *model.Session
	listeners map[int]func(*model.Session)
	nextID    int
	fallback  *time.Timer
}

func NewClient(svc *Service, opts ClientOptions) *Client {
	if opts.FallbackDelay <= 0 {
		opts.FallbackDelay = DefaultFallbackDelay
	}
	return &Client{
		svc:       svc,
		opts:      opts,
		listeners: make(map[int]func(*model.Session)),
	}
}

// Current returns a copy of the signed-in session, or nil.
func (c *Client) Current() *model.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	s := *c.current
	return &s
}

// OnSessionChange registers cb. It is called at once with the current
// session and then after every change.
func (c *Client) OnSessionChange(cb func(*model.Session)) func() {
	c.deliverMu.Lock()
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = cb
	current := copySession(c.current)
	c.mu.Unlock()
	cb(current)
	c.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (*model.Session, error) {
	return c.apply(c.svc.SignUp(ctx, email, password, displayName))
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	return c.apply(c.svc.SignIn(ctx, email, password))
}

func (c *Client) SignInAnonymous(ctx context.Context) (*model.Session, error) {
	return c.apply(c.svc.SignInAnonymous(ctx))
}

func (c *Client) SignInWithToken(ctx context.Context, token string) (*model.Session, error) {
	return c.apply(c.svc.SignInWithToken(ctx, token))
}

// SignInFederated signs in with an external identity. On failure the
// original error is returned and, when enabled, a guest sign-in follows
// after the fallback delay.
func (c *Client) SignInFederated(ctx context.Context, id *Identity) (*model.Session, error) {
	session, err := c.apply(c.svc.SignInFederated(ctx, id))
	if err == nil {
		return session, nil
	}
	if c.opts.AnonymousFallback {
		log.Printf("[warn] federated sign-in failed, falling back to guest in %s: %v", c.opts.FallbackDelay, err)
		c.mu.Lock()
		c.stopFallbackLocked()
		c.fallback = time.AfterFunc(c.opts.FallbackDelay, func() {
			if _, err := c.SignInAnonymous(context.Background()); err != nil {
				log.Printf("[warn] guest fallback: %v", err)
			}
		})
		c.mu.Unlock()
	}
	return nil, err
}

// SignOut clears the session and cancels a pending guest fallback.
func (c *Client) SignOut() {
	c.set(nil)
}

// Close stops a pending fallback and drops all listeners.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopFallbackLocked()
	c.listeners = make(map[int]func(*model.Session))
}

// Token issues a sign-in token for the current session.
func (c *Client) Token() (string, error) {
	current := c.Current()
	if current == nil {
		return "", ErrInvalidCredentials
	}
	return c.svc.IssueToken(current.OwnerID)
}

func (c *Client) apply(session model.Session, err error) (*model.Session, error) {
	if err != nil {
		return nil, err
	}
	c.set(&session)
	return copySession(&session), nil
}

func (c *Client) set(session *model.Session) {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	c.stopFallbackLocked()
	c.current = copySession(session)
	listeners := make([]func(*model.Session), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if cb, ok := c.listeners[id]; ok {
			listeners = append(listeners, cb)
		}
	}
	c.mu.Unlock()

	for _, cb := range listeners {
		cb(copySession(session))
	}
}

func (c *Client) stopFallbackLocked() {
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
}

func copySession(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

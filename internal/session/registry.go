package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"photostudio/internal/templates"
)

// Registry keeps live sessions by id and expires idle ones.
type Registry struct {
	editor  Editor
	catalog *templates.Catalog
	ttl     time.Duration
	opts    []Option
	cfg     options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry whose sessions share editor and
// catalog. A non-positive ttl disables expiry.
func NewRegistry(editor Editor, catalog *templates.Catalog, ttl time.Duration, opts ...Option) *Registry {
	if catalog == nil {
		catalog = templates.Default()
	}
	return &Registry{
		editor:   editor,
		catalog:  catalog,
		ttl:      ttl,
		opts:     opts,
		cfg:      buildOptions(opts),
		sessions: make(map[string]*Session),
	}
}

// Create starts a session under a fresh random id.
func (r *Registry) Create() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		id := uuid.NewString()
		if _, exists := r.sessions[id]; exists {
			continue
		}
		s := New(id, r.editor, r.catalog, r.opts...)
		r.sessions[id] = s
		return s
	}
}

// Open returns the session for id, creating it when absent.
func (r *Registry) Open(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := New(id, r.editor, r.catalog, r.opts...)
	r.sessions[id] = s
	return s
}

// Get looks up an existing session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete ends a session, cancelling any request it has in flight.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Reset()
	}
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep removes sessions that have been idle longer than the ttl. Sessions
// with a request in flight are kept.
func (r *Registry) Sweep(now time.Time) int {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		updated, busy := s.lastActive()
		if busy || now.Sub(updated) < r.ttl {
			continue
		}
		delete(r.sessions, id)
		expired = append(expired, s)
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Reset()
	}
	if len(expired) > 0 {
		r.cfg.logger.Info().Int("expired", len(expired)).Msg("session: swept idle sessions")
	}
	return len(expired)
}

// StartSweeper schedules Sweep on a cron spec such as "@every 1m". The
// returned function stops the schedule.
func (r *Registry) StartSweeper(spec string) (func(), error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		r.Sweep(r.cfg.now())
	}); err != nil {
		return nil, err
	}
	c.Start()
	return func() {
		<-c.Stop().Done()
	}, nil
}

package session

import (
	"context"
	"sync"
	"time"
)

type StoreOptions struct {
	Session Options
	IdleTTL time.Duration
}

// Store keeps one Session per browser, chat or CLI run. Sessions live in
// memory only.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	opts     Options
	idleTTL  time.Duration
}

func NewStore(opts StoreOptions) *Store {
	idleTTL := opts.IdleTTL
	if idleTTL <= 0 {
		idleTTL = 2 * time.Hour
	}

	return &Store{
		sessions: make(map[string]*Session),
		opts:     opts.Session,
		idleTTL:  idleTTL,
	}
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	// every lookup by a surface counts as activity, reads included
	if sess, ok := s.sessions[id]; ok {
		sess.touch()
		return sess
	}

	sess := New(id, s.opts)
	s.sessions[id] = sess
	return sess
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a
// request in flight are kept.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.busy() {
			continue
		}
		if now.Sub(sess.idleSince()) > s.idleTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep on every tick until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, every time.Duration, onSweep func(removed int)) error {
	if every <= 0 {
		every = time.Minute
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			removed := s.Sweep(now)
			if onSweep != nil && removed > 0 {
				onSweep(removed)
			}
		}
	}
}

package board

import "sync"

// Registry indexes live sessions by game ID so inbound remote events can be
// routed without going through a device.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) Put(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.sessions[s.GameID()] = s
	r.mu.Unlock()
}

func (r *Registry) Get(gameID string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[gameID]
	r.mu.RUnlock()
	return s, ok
}

func (r *Registry) Delete(gameID string) {
	r.mu.Lock()
	delete(r.sessions, gameID)
	r.mu.Unlock()
}

func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}

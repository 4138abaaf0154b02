package assistant

import "sync"

// sessionLocks admits one turn per session at a time. Entries are removed
// on release so the map only holds sessions with a turn in flight.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{held: make(map[string]struct{})}
}

// TryLock claims sessionID and returns its release function, or false if
// another turn holds it.
func (l *sessionLocks) TryLock(sessionID string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[sessionID]; busy {
		return nil, false
	}
	l.held[sessionID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, sessionID)
			l.mu.Unlock()
		})
	}, true
}

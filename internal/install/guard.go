package install

import "sync"

// Guard serializes mutations per app name across controllers. The zero
// value is not usable; call NewGuard.
type Guard struct {
	mu       sync.Mutex
	inFlight map[string]bool
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{inFlight: make(map[string]bool)}
}

// TryAcquire marks app as busy. It returns false if it already was.
func (g *Guard) TryAcquire(app string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight[app] {
		return false
	}
	g.inFlight[app] = true
	return true
}

// Release clears the busy mark for app.
func (g *Guard) Release(app string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, app)
}

// Busy reports whether an operation for app is in flight.
func (g *Guard) Busy(app string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[app]
}

package loader

import (
	"sync"

	"github.com/google/uuid"
)

// Token identifies one generation of a keyed load.
type Token struct {
	Key string
	gen string
}

// Guard hands out generation tokens per key. Starting a new load or invalidating
// the key makes all earlier tokens stale, so late completions can be dropped.
type Guard struct {
	mu      sync.Mutex
	current map[string]string
}

func NewGuard() *Guard {
	return &Guard{current: make(map[string]string)}
}

func (g *Guard) Begin(key string) Token {
	gen := uuid.NewString()
	g.mu.Lock()
	g.current[key] = gen
	g.mu.Unlock()
	return Token{Key: key, gen: gen}
}

// Current reports whether t is still the latest generation of its key.
func (g *Guard) Current(t Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return t.gen != "" && g.current[t.Key] == t.gen
}

// Apply runs fn only while t is current, holding the guard so no newer Begin can
// interleave with the application. It reports whether fn ran.
func (g *Guard) Apply(t Token, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.gen == "" || g.current[t.Key] != t.gen {
		return false
	}
	fn()
	return true
}

// Invalidate makes every outstanding token of key stale, e.g. on unmount.
func (g *Guard) Invalidate(key string) {
	g.mu.Lock()
	delete(g.current, key)
	g.mu.Unlock()
}

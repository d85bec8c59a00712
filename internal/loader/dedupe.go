// Package loader coordinates the console's background loads: collapsing duplicate
// triggers, running independent loads side by side and discarding stale results.
package loader

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Deduper collapses loads of the same key. Calls that overlap an in-flight load
// share its result; calls arriving within Window after a load completed reuse that
// result without loading again.
//
// A shared load runs detached from the caller that started it, bounded by the
// load timeout, so one caller going away does not fail the others. Each caller
// still stops waiting when its own context ends.
type Deduper struct {
	window  time.Duration
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group

	mu   sync.Mutex
	last map[string]completed
	// gens counts Forget calls per key; a load only remembers its result if no
	// Forget happened while it ran.
	gens map[string]uint64
}

type completed struct {
	at    time.Time
	value any
}

func NewDeduper(window, timeout time.Duration) *Deduper {
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Deduper{
		window:  window,
		timeout: timeout,
		now:     time.Now,
		last:    make(map[string]completed),
		gens:    make(map[string]uint64),
	}
}

// Do runs fn for key unless an equivalent load is in flight or just finished.
// shared reports whether the result came from another caller's load. Errors are
// never reused.
func (d *Deduper) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (value any, shared bool, err error) {
	d.mu.Lock()
	if prev, ok := d.last[key]; ok && d.now().Sub(prev.at) < d.window {
		d.mu.Unlock()
		return prev.value, true, nil
	}
	if _, ok := d.gens[key]; !ok {
		d.gens[key] = 0
	}
	d.mu.Unlock()

	ch := d.group.DoChan(key, func() (any, error) {
		d.mu.Lock()
		gen := d.gens[key]
		d.mu.Unlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		v, err := fn(loadCtx)
		if err == nil {
			d.mu.Lock()
			if d.gens[key] == gen {
				d.last[key] = completed{at: d.now(), value: v}
			}
			d.mu.Unlock()
		}
		return v, err
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	}
}

// Forget drops the remembered completion of key so the next Do loads again. A
// load already in flight keeps running for its waiters but its result is not
// remembered. Writes call it so read-after-write is never served from the window.
func (d *Deduper) Forget(key string) {
	d.mu.Lock()
	d.forget(key)
	d.mu.Unlock()
}

// ForgetPrefix forgets every key starting with prefix.
func (d *Deduper) ForgetPrefix(prefix string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.gens {
		if strings.HasPrefix(key, prefix) {
			d.forget(key)
		}
	}
}

func (d *Deduper) forget(key string) {
	d.gens[key]++
	delete(d.last, key)
	d.group.Forget(key)
}

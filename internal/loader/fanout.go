package loader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one named sub-load of a fan-out.
type Task struct {
	Name string
	Run  func(ctx context.Context) (any, error)
}

type Outcome struct {
	Value any
	Err   error
}

// FanOut runs tasks concurrently and collects every outcome by name. A failing
// task never cancels its siblings; only cancellation of ctx stops them.
func FanOut(ctx context.Context, limit int, tasks ...Task) map[string]Outcome {
	out := make(map[string]Outcome, len(tasks))
	var mu sync.Mutex
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, task := range tasks {
		g.Go(func() error {
			value, err := task.Run(ctx)
			mu.Lock()
			out[task.Name] = Outcome{Value: value, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

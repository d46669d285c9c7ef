// Package mediagroup coalesces bursts of Telegram messages sharing a media group id.
package mediagroup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultWindow is the quiet period after the first message of a burst.
const DefaultWindow = 3 * time.Second

// FlushFunc receives every item buffered for a group, in arrival order.
type FlushFunc[T any] func(ctx context.Context, key string, items []T)

type group[T any] struct {
	mu     sync.Mutex
	items  []T
	armed  bool
	closed bool
}

// Aggregator buffers items per key and flushes each burst exactly once, a fixed
// window after its first item. The timer is not reset by later items, so latency
// is bounded by the window.
type Aggregator[T any] struct {
	window time.Duration
	flush  FlushFunc[T]
	logger *slog.Logger

	groups sync.Map // string -> *group[T]
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// afterFunc schedules the flush; swapped in tests.
	afterFunc func(d time.Duration, f func())
}

// New creates an Aggregator. Flushes run with a context that is cancelled by Close.
func New[T any](window time.Duration, flush FlushFunc[T], logger *slog.Logger) *Aggregator[T] {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator[T]{
		window: window,
		flush:  flush,
		logger: logger.With("component", "media_group"),
		ctx:    ctx,
		cancel: cancel,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Add appends item to the burst identified by key and returns immediately.
// The first item of a burst arms the flush timer.
func (a *Aggregator[T]) Add(key string, item T) {
	for {
		v, _ := a.groups.LoadOrStore(key, &group[T]{})
		g := v.(*group[T])

		g.mu.Lock()
		if g.closed {
			// Flush already took this group; the next iteration opens a new one.
			g.mu.Unlock()
			continue
		}
		g.items = append(g.items, item)
		arm := !g.armed
		g.armed = true
		size := len(g.items)
		g.mu.Unlock()

		if arm {
			a.logger.Info("Scheduling media group flush", "media_group_id", key, "window", a.window)
			a.wg.Add(1)
			a.afterFunc(a.window, func() { a.fire(key, g) })
		} else {
			a.logger.Debug("Buffered media group message", "media_group_id", key, "buffered", size)
		}
		return
	}
}

func (a *Aggregator[T]) fire(key string, g *group[T]) {
	defer a.wg.Done()

	g.mu.Lock()
	g.closed = true
	items := g.items
	g.items = nil
	a.groups.CompareAndDelete(key, g)
	g.mu.Unlock()

	if len(items) == 0 {
		return
	}

	a.logger.Info("Flushing media group", "media_group_id", key, "messages", len(items))
	a.flush(a.ctx, key, items)
}

// Pending returns the number of groups currently buffering.
func (a *Aggregator[T]) Pending() int {
	n := 0
	a.groups.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Close waits for every armed group to flush, then cancels the flush context.
func (a *Aggregator[T]) Close() {
	a.wg.Wait()
	a.cancel()
}

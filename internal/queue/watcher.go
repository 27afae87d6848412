package queue

import (
	"context"
	"log"
	"time"
)

// Watcher polls a pending-count source on a fixed interval and fires its
// callback only when the count dropped since the previous poll, i.e. at
// least one generation finished. Equal or increased counts never fire.
type Watcher struct {
	fetch      func(ctx context.Context) (int, error)
	interval   time.Duration
	onDecrease func()

	primed   bool
	previous int
}

func NewWatcher(fetch func(ctx context.Context) (int, error), interval time.Duration, onDecrease func()) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{fetch: fetch, interval: interval, onDecrease: onDecrease}
}

// Poll performs a single observation step.
func (w *Watcher) Poll(ctx context.Context) error {
	count, err := w.fetch(ctx)
	if err != nil {
		// Keep the previous baseline; a transient fetch failure must not
		// turn into a spurious decrease on the next poll.
		return err
	}
	if w.primed && count < w.previous && w.onDecrease != nil {
		w.onDecrease()
	}
	w.primed = true
	w.previous = count
	return nil
}

// Run polls until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				log.Printf("queue watcher: poll failed: %v", err)
			}
		}
	}
}

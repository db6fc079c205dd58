package kvstore

import "sync"

// watcherSet fans changed keys out to subscribers without blocking writers.
// A subscriber that falls behind loses notifications; consumers reconcile
// from full state, so a dropped key only delays them one debounce window.
type watcherSet struct {
	mu     sync.Mutex
	chans  []chan string
	closed bool
}

func (w *watcherSet) subscribe() <-chan string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ch := make(chan string, 16)
	if w.closed {
		close(ch)
		return ch
	}
	w.chans = append(w.chans, ch)
	return ch
}

func (w *watcherSet) notify(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	for _, ch := range w.chans {
		select {
		case ch <- key:
		default:
		}
	}
}

func (w *watcherSet) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	for _, ch := range w.chans {
		close(ch)
	}
	w.chans = nil
}

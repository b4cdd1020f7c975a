package docstore

import (
	"context"
	"sync"
)

// FetchFunc re-reads the documents matching a listener's query.
type FetchFunc func(ctx context.Context, q Query) ([]Document, error)

// Hub fans committed changes out to listeners. Each listener runs in its own
// goroutine; pending notifications coalesce into one re-read so a slow
// listener never blocks writers.
type Hub struct {
	fetch FetchFunc

	mu        sync.Mutex
	listeners map[*listener]struct{}
	closed    bool
}

type listener struct {
	hub   *Hub
	query Query
	fn    ListenFunc
	dirty chan struct{}
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewHub(fetch FetchFunc) *Hub {
	return &Hub{
		fetch:     fetch,
		listeners: make(map[*listener]struct{}),
	}
}

// Listen registers fn and schedules the initial delivery.
func (h *Hub) Listen(ctx context.Context, q Query, fn ListenFunc) (Registration, error) {
	l := &listener{
		hub:   h,
		query: q,
		fn:    fn,
		dirty: make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.listeners[l] = struct{}{}
	h.mu.Unlock()

	l.dirty <- struct{}{}
	go l.run(context.WithoutCancel(ctx))
	return l, nil
}

// Publish wakes every listener whose query covers the change.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners {
		if l.query.Collection != c.Collection {
			continue
		}
		if l.query.UserID != "" && c.UserID != "" && l.query.UserID != c.UserID {
			continue
		}
		select {
		case l.dirty <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of registered listeners.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

// Close removes every listener and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ls := make([]*listener, 0, len(h.listeners))
	for l := range h.listeners {
		ls = append(ls, l)
	}
	h.mu.Unlock()

	for _, l := range ls {
		l.Remove()
	}
}

func (l *listener) run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			return
		case <-l.dirty:
		}
		docs, err := l.hub.fetch(ctx, l.query)
		select {
		case <-l.stop:
			return
		default:
		}
		l.fn(docs, err)
	}
}

// Remove unregisters the listener. A delivery already in progress may
// still complete; none starts afterwards.
func (l *listener) Remove() {
	l.once.Do(func() {
		l.hub.mu.Lock()
		delete(l.hub.listeners, l)
		l.hub.mu.Unlock()
		close(l.stop)
	})
}

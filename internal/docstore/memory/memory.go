// Package memory is an in-process docstore.Store. It backs the "memory"
// data backend and the unit tests of everything above the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"moneytracker/internal/docstore"
)

type entry struct {
	doc docstore.Document
	seq uint64
}

type docKey struct {
	collection string
	id         string
}

type Store struct {
	mu     sync.Mutex
	docs   map[docKey]entry
	index  map[indexKey]map[string]struct{}
	seq    uint64
	now    func() time.Time
	hub    *docstore.Hub
	closed bool
}

// indexKey mirrors the sqlite (collection, user_id, key) index.
type indexKey struct {
	collection string
	userID     string
	key        string
}

func New() *Store {
	s := &Store{
		docs:  make(map[docKey]entry),
		index: make(map[indexKey]map[string]struct{}),
		now:   func() time.Time { return time.Now().UTC() },
	}
	s.hub = docstore.NewHub(s.Find)
	return s
}

func (s *Store) NewID() string {
	return docstore.NewID()
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.Document{}, docstore.ErrClosed
	}
	e, ok := s.docs[docKey{collection, id}]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return cloneDoc(e.doc), nil
}

func (s *Store) Find(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, docstore.ErrClosed
	}
	return s.findLocked(q, nil), nil
}

func (s *Store) Set(ctx context.Context, d docstore.Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(ctx, d)
	})
}

func (s *Store) Update(ctx context.Context, d docstore.Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Update(ctx, d)
	})
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Delete(ctx, collection, id)
	})
}

// RunTransaction holds the store lock for the whole of fn, so transactions
// are serialised. Writes are staged and applied only when fn succeeds.
func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return docstore.ErrClosed
	}
	tx := &memTx{store: s, staged: make(map[docKey]*docstore.Document)}
	if err := fn(ctx, tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	changes := s.applyLocked(tx)
	s.mu.Unlock()

	for _, c := range changes {
		s.hub.Publish(c)
	}
	return nil
}

func (s *Store) Listen(ctx context.Context, q docstore.Query, fn docstore.ListenFunc) (docstore.Registration, error) {
	return s.hub.Listen(ctx, q, fn)
}

func (s *Store) Notify(c docstore.Change) {
	s.hub.Publish(c)
}

// Listeners returns the number of live listeners.
func (s *Store) Listeners() int {
	return s.hub.Len()
}

// Ping reports ErrClosed once the store is closed.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.Close()
	return nil
}

func (s *Store) applyLocked(tx *memTx) []docstore.Change {
	now := s.now()
	changes := make([]docstore.Change, 0, len(tx.order))
	for _, k := range tx.order {
		staged := tx.staged[k]
		old, existed := s.docs[k]
		if existed {
			s.unindexLocked(old.doc)
		}
		if staged == nil {
			if !existed {
				continue
			}
			delete(s.docs, k)
			changes = append(changes, docstore.Change{Collection: k.collection, UserID: old.doc.UserID, DocumentID: k.id, Op: docstore.OpDelete, At: now})
			continue
		}
		e := entry{doc: *staged}
		op := docstore.OpSet
		if existed {
			e.seq = old.seq
			op = docstore.OpUpdate
		} else {
			s.seq++
			e.seq = s.seq
		}
		s.docs[k] = e
		s.indexLocked(e.doc)
		changes = append(changes, docstore.Change{Collection: k.collection, UserID: e.doc.UserID, DocumentID: k.id, Op: op, At: now})
	}
	return changes
}

func (s *Store) indexLocked(d docstore.Document) {
	k := indexKey{d.Collection, d.UserID, d.Key}
	ids, ok := s.index[k]
	if !ok {
		ids = make(map[string]struct{})
		s.index[k] = ids
	}
	ids[d.ID] = struct{}{}
}

func (s *Store) unindexLocked(d docstore.Document) {
	k := indexKey{d.Collection, d.UserID, d.Key}
	if ids, ok := s.index[k]; ok {
		delete(ids, d.ID)
		if len(ids) == 0 {
			delete(s.index, k)
		}
	}
}

// findLocked answers q from committed documents overlaid with tx's staged
// writes when tx is non-nil.
func (s *Store) findLocked(q docstore.Query, tx *memTx) []docstore.Document {
	var candidates []entry
	if q.UserID != "" && q.Key != "" {
		for id := range s.index[indexKey{q.Collection, q.UserID, q.Key}] {
			candidates = append(candidates, s.docs[docKey{q.Collection, id}])
		}
	} else {
		for k, e := range s.docs {
			if k.collection == q.Collection {
				candidates = append(candidates, e)
			}
		}
	}

	if tx != nil {
		seen := make(map[string]bool, len(candidates))
		merged := candidates[:0]
		for _, e := range candidates {
			seen[e.doc.ID] = true
			if staged, ok := tx.staged[docKey{q.Collection, e.doc.ID}]; ok {
				if staged == nil {
					continue
				}
				e.doc = *staged
			}
			merged = append(merged, e)
		}
		candidates = merged
		next := s.seq
		for _, k := range tx.order {
			staged := tx.staged[k]
			if k.collection != q.Collection || staged == nil || seen[k.id] {
				continue
			}
			e, committed := s.docs[k]
			if !committed {
				next++
				e.seq = next
			}
			e.doc = *staged
			candidates = append(candidates, e)
		}
	}

	out := make([]entry, 0, len(candidates))
	for _, e := range candidates {
		if q.Matches(e.doc) {
			out = append(out, e)
		}
	}
	// Creation time first, insertion order on ties, matching the sqlite index.
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].doc.CreatedAt, out[j].doc.CreatedAt
		if !a.Equal(b) {
			return a.Before(b)
		}
		return out[i].seq < out[j].seq
	})

	docs := make([]docstore.Document, len(out))
	for i, e := range out {
		docs[i] = cloneDoc(e.doc)
	}
	return docs
}

func cloneDoc(d docstore.Document) docstore.Document {
	d.Data = append([]byte(nil), d.Data...)
	return d
}

type memTx struct {
	store  *Store
	staged map[docKey]*docstore.Document // nil value marks a delete
	order  []docKey
}

func (t *memTx) stage(k docKey, d *docstore.Document) {
	if _, ok := t.staged[k]; !ok {
		t.order = append(t.order, k)
	}
	t.staged[k] = d
}

func (t *memTx) lookup(k docKey) (docstore.Document, bool) {
	if staged, ok := t.staged[k]; ok {
		if staged == nil {
			return docstore.Document{}, false
		}
		return *staged, true
	}
	e, ok := t.store.docs[k]
	return e.doc, ok
}

func (t *memTx) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	d, ok := t.lookup(docKey{collection, id})
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return cloneDoc(d), nil
}

func (t *memTx) Find(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	return t.store.findLocked(q, t), nil
}

func (t *memTx) Set(_ context.Context, d docstore.Document) error {
	d = cloneDoc(d)
	t.stage(docKey{d.Collection, d.ID}, &d)
	return nil
}

func (t *memTx) Update(_ context.Context, d docstore.Document) error {
	k := docKey{d.Collection, d.ID}
	if _, ok := t.lookup(k); !ok {
		return docstore.ErrNotFound
	}
	d = cloneDoc(d)
	t.stage(k, &d)
	return nil
}

func (t *memTx) Delete(_ context.Context, collection, id string) error {
	t.stage(docKey{collection, id}, nil)
	return nil
}

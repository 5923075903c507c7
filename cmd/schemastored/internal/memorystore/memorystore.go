// Package memorystore provides in-memory implementations of the schema
// storage backends. They back ephemeral deployments and give tests an
// instrumented view of backend traffic: every ledger create, open, append and
// read and every node read, create and update bumps a counter so properties
// like read coalescing are observable.
package memorystore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

// Counters is a snapshot of backend operation counts.
type Counters struct {
	LedgerCreates int64
	LedgerOpens   int64
	EntryAppends  int64
	EntryReads    int64
	NodeReads     int64
	NodeCreates   int64
	NodeUpdates   int64
}

type ledger struct {
	id       int64
	schemaID string
	entries  [][]byte
	closed   bool
}

// LedgerStore is an in-memory append-only entry store.
type LedgerStore struct {
	mu      sync.RWMutex
	ledgers map[int64]*ledger
	nextID  int64

	creates atomic.Int64
	opens   atomic.Int64
	appends atomic.Int64
	reads   atomic.Int64
}

var _ schemastore.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{ledgers: make(map[int64]*ledger)}
}

func (s *LedgerStore) CreateLedger(ctx context.Context, opts schemastore.CreateLedgerOptions) (schemastore.LedgerHandle, error) {
	s.creates.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	l := &ledger{id: s.nextID, schemaID: opts.SchemaID}
	s.nextID++
	s.ledgers[l.id] = l
	return &ledgerHandle{store: s, id: l.id}, nil
}

func (s *LedgerStore) OpenLedger(ctx context.Context, ledgerID int64) (schemastore.LedgerHandle, error) {
	s.opens.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.ledgers[ledgerID]; !ok {
		return nil, schemastore.ErrLedgerNotFound
	}
	return &ledgerHandle{store: s, id: ledgerID}, nil
}

func (s *LedgerStore) Close() error {
	return nil
}

// Counters returns a snapshot of the operation counts.
func (s *LedgerStore) Counters() Counters {
	return Counters{
		LedgerCreates: s.creates.Load(),
		LedgerOpens:   s.opens.Load(),
		EntryAppends:  s.appends.Load(),
		EntryReads:    s.reads.Load(),
	}
}

// LedgerCount returns how many ledgers have ever been created, leaked
// orphans included.
func (s *LedgerStore) LedgerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledgers)
}

type ledgerHandle struct {
	store *LedgerStore
	id    int64
}

func (h *ledgerHandle) ID() int64 {
	return h.id
}

func (h *ledgerHandle) Append(ctx context.Context, payload []byte) (int64, error) {
	h.store.appends.Add(1)
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	l, ok := h.store.ledgers[h.id]
	if !ok {
		return 0, schemastore.ErrLedgerNotFound
	}
	l.entries = append(l.entries, append([]byte(nil), payload...))
	return int64(len(l.entries) - 1), nil
}

func (h *ledgerHandle) ReadEntry(ctx context.Context, entryID int64) ([]byte, error) {
	h.store.reads.Add(1)
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	l, ok := h.store.ledgers[h.id]
	if !ok {
		return nil, schemastore.ErrLedgerNotFound
	}
	if entryID < 0 || entryID >= int64(len(l.entries)) {
		return nil, schemastore.ErrEntryNotFound
	}
	return append([]byte(nil), l.entries[entryID]...), nil
}

func (h *ledgerHandle) Close(ctx context.Context) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	if l, ok := h.store.ledgers[h.id]; ok {
		l.closed = true
	}
	return nil
}

type node struct {
	content []byte
	version int64
}

// LocatorStore is an in-memory versioned keyed node store.
type LocatorStore struct {
	mu    sync.RWMutex
	nodes map[string]node

	reads   atomic.Int64
	creates atomic.Int64
	updates atomic.Int64
}

var _ schemastore.LocatorStore = (*LocatorStore)(nil)

func NewLocatorStore() *LocatorStore {
	return &LocatorStore{nodes: make(map[string]node)}
}

func (s *LocatorStore) Read(ctx context.Context, path string) (schemastore.Node, bool, error) {
	s.reads.Add(1)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[path]
	if !ok {
		return schemastore.Node{}, false, nil
	}
	return schemastore.Node{Content: append([]byte(nil), n.content...), Version: n.version}, true, nil
}

func (s *LocatorStore) Create(ctx context.Context, path string, content []byte) error {
	s.creates.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[path]; ok {
		return schemastore.ErrNodeExists
	}
	s.nodes[path] = node{content: append([]byte(nil), content...), version: 0}
	return nil
}

func (s *LocatorStore) Update(ctx context.Context, path string, content []byte, expectedVersion int64) error {
	s.updates.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[path]
	if !ok || n.version != expectedVersion {
		return schemastore.ErrNodeVersionMismatch
	}
	s.nodes[path] = node{content: append([]byte(nil), content...), version: n.version + 1}
	return nil
}

func (s *LocatorStore) Invalidate(path string) {
	// No cache, nothing to drop.
}

func (s *LocatorStore) EnsureRoot(ctx context.Context, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[root]; !ok {
		s.nodes[root] = node{}
	}
	return nil
}

func (s *LocatorStore) Close() error {
	return nil
}

// Counters returns a snapshot of the operation counts.
func (s *LocatorStore) Counters() Counters {
	return Counters{
		NodeReads:   s.reads.Load(),
		NodeCreates: s.creates.Load(),
		NodeUpdates: s.updates.Load(),
	}
}

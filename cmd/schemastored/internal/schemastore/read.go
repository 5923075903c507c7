package schemastore

import (
	"context"
	"fmt"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/codec"
)

// maxIndexHops bounds the legacy index fallback of GetByVersion. Well-formed
// data needs at most one hop; anything deeper means a corrupt index chain.
const maxIndexHops = 8

// Get fetches the schema stored under schemaID at rv. ok=false means the
// schema id, or the requested version, does not exist.
func (e *Engine) Get(ctx context.Context, schemaID string, rv ReadVersion) (StoredSchema, bool, error) {
	if rv.IsLatest() {
		return e.GetLatest(ctx, schemaID)
	}
	return e.GetByVersion(ctx, schemaID, rv.Version())
}

type latestResult struct {
	schema StoredSchema
	ok     bool
}

// GetLatest fetches the most recently registered schema. Concurrent calls
// for the same schema id are coalesced into a single backend round-trip; the
// piggy-backed callers observe the same result or error.
func (e *Engine) GetLatest(ctx context.Context, schemaID string) (StoredSchema, bool, error) {
	if err := e.checkStarted(); err != nil {
		return StoredSchema{}, false, err
	}
	e.metrics.reads.WithLabelValues("latest").Inc()

	// The leader runs the function in this goroutine; only the callers that
	// joined its flight count as coalesced.
	leader := false
	v, err, shared := e.latest.Do(schemaID, func() (interface{}, error) {
		leader = true
		schema, ok, err := e.fetchLatest(ctx, schemaID)
		if err != nil {
			return nil, err
		}
		return latestResult{schema: schema, ok: ok}, nil
	})
	if shared && !leader {
		e.metrics.coalescedReads.Inc()
	}
	if err != nil {
		return StoredSchema{}, false, err
	}
	res := v.(latestResult)
	return res.schema, res.ok, nil
}

func (e *Engine) fetchLatest(ctx context.Context, schemaID string) (StoredSchema, bool, error) {
	locator, ok, err := e.readLocator(ctx, schemaID)
	if err != nil || !ok {
		return StoredSchema{}, false, err
	}
	entry, err := e.readSchemaEntry(ctx, locator.Info.Position)
	if err != nil {
		return StoredSchema{}, false, err
	}
	return StoredSchema{Data: entry.SchemaData, Version: locator.Info.Version}, true, nil
}

// GetByVersion fetches a specific historical version. Versions beyond the
// latest, and versions missing from a (legacy) sparse index, report
// ok=false.
func (e *Engine) GetByVersion(ctx context.Context, schemaID string, version uint64) (StoredSchema, bool, error) {
	if err := e.checkStarted(); err != nil {
		return StoredSchema{}, false, err
	}
	e.metrics.reads.WithLabelValues("by_version").Inc()

	locator, ok, err := e.readLocator(ctx, schemaID)
	if err != nil || !ok {
		return StoredSchema{}, false, err
	}
	if version > locator.Info.Version {
		return StoredSchema{}, false, nil
	}
	entry, ok, err := e.findIndexEntry(ctx, locator.Index, version, 0)
	if err != nil || !ok {
		return StoredSchema{}, false, err
	}
	if entry.Position.IsSentinel() {
		// Placeholder entries carry no backing position. They can only be
		// selected out of hand-me-down indexes in legacy payloads.
		return StoredSchema{}, false, nil
	}
	schemaEntry, err := e.readSchemaEntry(ctx, entry.Position)
	if err != nil {
		return StoredSchema{}, false, err
	}
	return StoredSchema{Data: schemaEntry.SchemaData, Version: version}, true, nil
}

// findIndexEntry scans index for the entry at version. When the index does
// not reach back far enough (older formats stored only a window of entries
// inline) it hops into the schema entry referenced by the oldest index entry
// and searches the index embedded there.
func (e *Engine) findIndexEntry(ctx context.Context, index []codec.IndexEntry, version uint64, hops int) (codec.IndexEntry, bool, error) {
	if len(index) == 0 {
		return codec.IndexEntry{}, false, nil
	}
	if index[0].Version > version {
		if hops >= maxIndexHops {
			return codec.IndexEntry{}, false, fmt.Errorf("%w: index chain deeper than %d hops", codec.ErrDecode, maxIndexHops)
		}
		entry, err := e.readSchemaEntry(ctx, index[0].Position)
		if err != nil {
			return codec.IndexEntry{}, false, err
		}
		return e.findIndexEntry(ctx, entry.Index, version, hops+1)
	}
	for _, ie := range index {
		if ie.Version == version {
			return ie, true, nil
		}
		if ie.Version > version {
			break
		}
	}
	return codec.IndexEntry{}, false, nil
}

// SchemaFuture is one pending per-version read produced by GetAll.
type SchemaFuture struct {
	version uint64
	done    chan struct{}
	schema  StoredSchema
	err     error
}

// Version returns the schema version this future resolves.
func (f *SchemaFuture) Version() uint64 {
	return f.version
}

// Await blocks until the read completes or ctx is done. Abandoning a future
// does not cancel the underlying read.
func (f *SchemaFuture) Await(ctx context.Context) (StoredSchema, error) {
	select {
	case <-f.done:
		return f.schema, f.err
	case <-ctx.Done():
		return StoredSchema{}, ctx.Err()
	}
}

// GetAll returns one future per entry of the locator's inline index, in
// version order. The call completes as soon as the locator is known; each
// future completes when its ledger entry has been read. An unknown schema id
// yields an empty slice. Versions missing from a truncated legacy inline index
// are not recovered from embedded indexes and get no future.
func (e *Engine) GetAll(ctx context.Context, schemaID string) ([]*SchemaFuture, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}
	e.metrics.reads.WithLabelValues("all").Inc()

	locator, ok, err := e.readLocator(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*SchemaFuture{}, nil
	}

	futures := make([]*SchemaFuture, 0, len(locator.Index))
	for _, ie := range locator.Index {
		f := &SchemaFuture{version: ie.Version, done: make(chan struct{})}
		futures = append(futures, f)
		position := ie.Position
		e.tasks.Go(func() {
			defer close(f.done)
			entry, err := e.readSchemaEntry(ctx, position)
			if err != nil {
				f.err = err
				return
			}
			f.schema = StoredSchema{Data: entry.SchemaData, Version: f.version}
		})
	}
	return futures, nil
}

// readLocator reads and decodes the locator node for schemaID.
func (e *Engine) readLocator(ctx context.Context, schemaID string) (codec.SchemaLocator, bool, error) {
	node, ok, err := e.locators.Read(ctx, e.nodePath(schemaID))
	if err != nil {
		return codec.SchemaLocator{}, false, fmt.Errorf("reading locator for %q: %w", schemaID, err)
	}
	if !ok {
		return codec.SchemaLocator{}, false, nil
	}
	locator, err := codec.UnmarshalSchemaLocator(node.Content)
	if err != nil {
		return codec.SchemaLocator{}, false, fmt.Errorf("locator for %q: %w", schemaID, err)
	}
	return locator, true, nil
}

// readSchemaEntry opens the ledger at position, reads the single entry and
// closes the ledger again. The handle is closed on every path; a close
// failure is logged and never masks a successful read.
func (e *Engine) readSchemaEntry(ctx context.Context, position codec.Position) (codec.SchemaEntry, error) {
	handle, err := e.ledgers.OpenLedger(ctx, position.LedgerID)
	if err != nil {
		return codec.SchemaEntry{}, fmt.Errorf("opening ledger %d: %w", position.LedgerID, err)
	}
	defer func() {
		if closeErr := handle.Close(ctx); closeErr != nil {
			e.logger.WithError(closeErr).WithField("ledger", position.LedgerID).Warn("could not close ledger after read")
		}
	}()

	payload, err := handle.ReadEntry(ctx, position.EntryID)
	if err != nil {
		return codec.SchemaEntry{}, fmt.Errorf("reading entry %d of ledger %d: %w", position.EntryID, position.LedgerID, err)
	}
	entry, err := codec.UnmarshalSchemaEntry(payload)
	if err != nil {
		return codec.SchemaEntry{}, fmt.Errorf("entry %d of ledger %d: %w", position.EntryID, position.LedgerID, err)
	}
	return entry, nil
}

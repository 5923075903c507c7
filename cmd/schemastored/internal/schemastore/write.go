package schemastore

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/codec"
)

// Put registers a schema under schemaID and returns the assigned version.
// Re-registering the latest schema (matched by hash) is idempotent and
// returns the existing version without writing. Lost locator races retry the
// whole write from the locator read; the retry loop is bounded only by ctx.
func (e *Engine) Put(ctx context.Context, schemaID string, data, hash []byte) (uint64, error) {
	if err := e.checkStarted(); err != nil {
		return 0, err
	}
	if schemaID == "" {
		return 0, errors.New("schemastore: schema id must not be empty")
	}

	path := e.nodePath(schemaID)
	var version uint64
	operation := func() error {
		v, err := e.putOnce(ctx, schemaID, path, data, hash)
		switch {
		case err == nil:
			version = v
			return nil
		case errors.Is(err, ErrNodeExists) || errors.Is(err, ErrNodeVersionMismatch):
			// Another writer advanced the locator first. The ledger we just
			// wrote is leaked on purpose: a parallel reader may already be
			// opening it, so rollback is never attempted.
			e.metrics.casConflicts.Inc()
			e.locators.Invalidate(path)
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	bo := backoff.WithContext(backoff.NewConstantBackOff(e.cfg.PutRetryInterval), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		e.metrics.puts.WithLabelValues("error").Inc()
		return 0, err
	}
	e.metrics.puts.WithLabelValues("ok").Inc()
	return version, nil
}

// putOnce runs one attempt of the write path. It returns ErrNodeExists or
// ErrNodeVersionMismatch when a locator race was lost.
func (e *Engine) putOnce(ctx context.Context, schemaID, path string, data, hash []byte) (uint64, error) {
	node, ok, err := e.locators.Read(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("reading locator for %q: %w", schemaID, err)
	}
	if !ok {
		return e.createNewHistory(ctx, schemaID, path, data, hash)
	}
	return e.appendToHistory(ctx, schemaID, path, node, data, hash)
}

// createNewHistory writes version 0 of a schema id that has never been seen.
// The ledger payload carries a placeholder index entry because the entry's
// own position is not known until the append completes.
func (e *Engine) createNewHistory(ctx context.Context, schemaID, path string, data, hash []byte) (uint64, error) {
	placeholder := codec.IndexEntry{Version: 0, Hash: hash, Position: codec.NoPosition}
	payload := codec.MarshalSchemaEntry(codec.SchemaEntry{
		SchemaData: data,
		Index:      []codec.IndexEntry{placeholder},
	})

	position, err := e.appendToNewLedger(ctx, schemaID, payload)
	if err != nil {
		return 0, err
	}

	entry := codec.IndexEntry{Version: 0, Hash: hash, Position: position}
	locator := codec.SchemaLocator{Info: entry, Index: []codec.IndexEntry{entry}}
	if err := e.locators.Create(ctx, path, codec.MarshalSchemaLocator(locator)); err != nil {
		if errors.Is(err, ErrNodeExists) {
			e.metrics.orphanedLedgers.Inc()
		}
		return 0, err
	}
	return 0, nil
}

// appendToHistory advances an existing schema history by one version, or
// short-circuits when the latest stored hash already matches. An empty stored
// hash (left by a logical delete) never short-circuits.
func (e *Engine) appendToHistory(ctx context.Context, schemaID, path string, node Node, data, hash []byte) (uint64, error) {
	locator, err := codec.UnmarshalSchemaLocator(node.Content)
	if err != nil {
		return 0, fmt.Errorf("locator for %q: %w", schemaID, err)
	}

	if len(locator.Info.Hash) > 0 && bytes.Equal(locator.Info.Hash, hash) {
		return locator.Info.Version, nil
	}

	nextVersion := locator.Info.Version + 1
	payload := codec.MarshalSchemaEntry(codec.SchemaEntry{
		SchemaData: data,
		Index:      locator.Index,
	})
	position, err := e.appendToNewLedger(ctx, schemaID, payload)
	if err != nil {
		return 0, err
	}

	entry := codec.IndexEntry{Version: nextVersion, Hash: hash, Position: position}
	updated := codec.SchemaLocator{
		Info:  entry,
		Index: append(locator.Index, entry),
	}
	if err := e.locators.Update(ctx, path, codec.MarshalSchemaLocator(updated), node.Version); err != nil {
		if errors.Is(err, ErrNodeVersionMismatch) {
			e.metrics.orphanedLedgers.Inc()
		}
		return 0, err
	}
	return nextVersion, nil
}

// appendToNewLedger creates a ledger, appends a single entry and closes the
// ledger. The close runs before the locator CAS so readers never observe a
// position inside an unclosed ledger; a close failure is logged but does not
// fail the write.
func (e *Engine) appendToNewLedger(ctx context.Context, schemaID string, payload []byte) (codec.Position, error) {
	handle, err := e.ledgers.CreateLedger(ctx, e.createLedgerOptions(schemaID))
	if err != nil {
		return codec.Position{}, fmt.Errorf("creating ledger for %q: %w", schemaID, err)
	}
	entryID, err := handle.Append(ctx, payload)
	if err != nil {
		if closeErr := handle.Close(ctx); closeErr != nil {
			e.logger.WithError(closeErr).WithField("ledger", handle.ID()).Warn("could not close ledger after failed append")
		}
		return codec.Position{}, fmt.Errorf("appending schema entry for %q: %w", schemaID, err)
	}
	if err := handle.Close(ctx); err != nil {
		e.logger.WithError(err).WithField("ledger", handle.ID()).Warn("could not close ledger after append")
	}
	return codec.Position{LedgerID: handle.ID(), EntryID: entryID}, nil
}

// Delete registers a tombstone: an empty schema with an empty hash. It
// advances the version like any other write and reclaims nothing. Returns
// ok=false without writing when schemaID has no history.
func (e *Engine) Delete(ctx context.Context, schemaID string) (uint64, bool, error) {
	if err := e.checkStarted(); err != nil {
		return 0, false, err
	}
	_, ok, err := e.GetLatest(ctx, schemaID)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	version, err := e.Put(ctx, schemaID, nil, nil)
	if err != nil {
		return 0, false, err
	}
	return version, true, nil
}

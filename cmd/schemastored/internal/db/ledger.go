package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

const (
	ledgersTableName       = "ledgers"
	ledgerEntriesTableName = "ledger_entries"

	ledgerStateOpen   = "open"
	ledgerStateClosed = "closed"
)

// LedgerStore is the SQLite implementation of the append-only entry store.
// Ledger ids are rowids assigned by the database; entry ids are dense per
// ledger starting at 0.
type LedgerStore struct {
	db *sqlx.DB
}

var _ schemastore.LedgerStore = (*LedgerStore)(nil)

func NewLedgerStore(db *sqlx.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) CreateLedger(ctx context.Context, opts schemastore.CreateLedgerOptions) (schemastore.LedgerHandle, error) {
	sqlStr, args, err := sq.Insert(ledgersTableName).
		Columns("schema_id", "ensemble_size", "write_quorum", "ack_quorum", "digest", "state").
		Values(opts.SchemaID, opts.EnsembleSize, opts.WriteQuorum, opts.AckQuorum, opts.DigestType, ledgerStateOpen).
		ToSql()
	if err != nil {
		return nil, err
	}
	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ledgerHandle{store: s, id: id}, nil
}

func (s *LedgerStore) OpenLedger(ctx context.Context, ledgerID int64) (schemastore.LedgerHandle, error) {
	sqlStr, args, err := sq.Select("id").From(ledgersTableName).Where(sq.Eq{"id": ledgerID}).ToSql()
	if err != nil {
		return nil, err
	}
	var ids []int64
	if err = s.db.SelectContext(ctx, &ids, sqlStr, args...); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, schemastore.ErrLedgerNotFound
	}
	return &ledgerHandle{store: s, id: ledgerID}, nil
}

func (s *LedgerStore) Close() error {
	// The sqlx.DB is shared with the locator store and owned by the caller
	// that opened it.
	return nil
}

type ledgerHandle struct {
	store *LedgerStore
	id    int64
}

func (h *ledgerHandle) ID() int64 {
	return h.id
}

// Append inserts the next dense entry id for this ledger. The write path
// appends exactly one entry per ledger, so the max-scan inside the
// transaction is over at most one row.
func (h *ledgerHandle) Append(ctx context.Context, payload []byte) (int64, error) {
	tx, err := h.store.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	entryID, err := appendEntry(ctx, tx, h.id, payload)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return entryID, nil
}

func appendEntry(ctx context.Context, tx *sqlx.Tx, ledgerID int64, payload []byte) (int64, error) {
	sqlStr, args, err := sq.Select("state").From(ledgersTableName).Where(sq.Eq{"id": ledgerID}).ToSql()
	if err != nil {
		return 0, err
	}
	var states []string
	if err = tx.SelectContext(ctx, &states, sqlStr, args...); err != nil {
		return 0, err
	}
	switch len(states) {
	case 0:
		return 0, schemastore.ErrLedgerNotFound
	case 1:
		// expected
	default:
		return 0, fmt.Errorf("multiple ledgers (%d) with id %d in table %q", len(states), ledgerID, ledgersTableName)
	}
	if states[0] != ledgerStateOpen {
		return 0, fmt.Errorf("ledger %d is not open for writing", ledgerID)
	}

	sqlStr, args, err = sq.Select("COALESCE(MAX(entry_id) + 1, 0)").
		From(ledgerEntriesTableName).Where(sq.Eq{"ledger_id": ledgerID}).ToSql()
	if err != nil {
		return 0, err
	}
	var entryID int64
	if err = tx.GetContext(ctx, &entryID, sqlStr, args...); err != nil {
		return 0, err
	}

	sqlStr, args, err = sq.Insert(ledgerEntriesTableName).
		Columns("ledger_id", "entry_id", "payload").
		Values(ledgerID, entryID, payload).
		ToSql()
	if err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return 0, fmt.Errorf("appending entry to ledger %d: %w", ledgerID, err)
	}
	return entryID, nil
}

func (h *ledgerHandle) ReadEntry(ctx context.Context, entryID int64) ([]byte, error) {
	sqlStr, args, err := sq.Select("payload").From(ledgerEntriesTableName).
		Where(sq.Eq{"ledger_id": h.id, "entry_id": entryID}).ToSql()
	if err != nil {
		return nil, err
	}
	var payloads [][]byte
	if err = h.store.db.SelectContext(ctx, &payloads, sqlStr, args...); err != nil {
		return nil, err
	}
	switch len(payloads) {
	case 0:
		return nil, schemastore.ErrEntryNotFound
	case 1:
		return payloads[0], nil
	default:
		return nil, fmt.Errorf("multiple entries (%d) at (%d, %d) in table %q", len(payloads), h.id, entryID, ledgerEntriesTableName)
	}
}

// Close marks the ledger closed. Idempotent: closing an already closed
// ledger is a no-op.
func (h *ledgerHandle) Close(ctx context.Context) error {
	sqlStr, args, err := sq.Update(ledgersTableName).
		Set("state", ledgerStateClosed).
		Where(sq.Eq{"id": h.id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err = h.store.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("closing ledger %d: %w", h.id, err)
	}
	return nil
}

package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

const (
	locatorNodesTableName = "locator_nodes"

	// DefaultLocatorCacheSize bounds the locator read cache when the
	// configuration does not say otherwise.
	DefaultLocatorCacheSize = 1024
)

// LocatorStore is the SQLite implementation of the versioned keyed node
// store. Reads go through an LRU cache holding content and node version as a
// consistent pair; writes refresh the cache, and the engine invalidates a
// path before retrying a lost race.
type LocatorStore struct {
	db    *sqlx.DB
	cache *lru.Cache[string, schemastore.Node]
}

var _ schemastore.LocatorStore = (*LocatorStore)(nil)

func NewLocatorStore(db *sqlx.DB, cacheSize int) (*LocatorStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultLocatorCacheSize
	}
	cache, err := lru.New[string, schemastore.Node](cacheSize)
	if err != nil {
		return nil, err
	}
	return &LocatorStore{db: db, cache: cache}, nil
}

func (s *LocatorStore) Read(ctx context.Context, path string) (schemastore.Node, bool, error) {
	if node, ok := s.cache.Get(path); ok {
		return node, true, nil
	}

	sqlStr, args, err := sq.Select("content", "node_version").
		From(locatorNodesTableName).Where(sq.Eq{"path": path}).ToSql()
	if err != nil {
		return schemastore.Node{}, false, err
	}
	var results []struct {
		Content     []byte `db:"content"`
		NodeVersion int64  `db:"node_version"`
	}
	if err = s.db.SelectContext(ctx, &results, sqlStr, args...); err != nil {
		return schemastore.Node{}, false, err
	}
	switch len(results) {
	case 0:
		return schemastore.Node{}, false, nil
	case 1:
		// expected
	default:
		return schemastore.Node{}, false, fmt.Errorf("multiple nodes (%d) at path %q in table %q", len(results), path, locatorNodesTableName)
	}
	node := schemastore.Node{Content: results[0].Content, Version: results[0].NodeVersion}
	s.cache.Add(path, node)
	return node, true, nil
}

func (s *LocatorStore) Create(ctx context.Context, path string, content []byte) error {
	sqlStr, args, err := sq.Insert(locatorNodesTableName).
		Options("OR IGNORE").
		Columns("path", "content", "node_version").
		Values(path, content, 0).
		ToSql()
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("creating node %q: %w", path, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return schemastore.ErrNodeExists
	}
	s.cache.Add(path, schemastore.Node{Content: content, Version: 0})
	return nil
}

func (s *LocatorStore) Update(ctx context.Context, path string, content []byte, expectedVersion int64) error {
	sqlStr, args, err := sq.Update(locatorNodesTableName).
		Set("content", content).
		Set("node_version", expectedVersion+1).
		Where(sq.Eq{"path": path, "node_version": expectedVersion}).
		ToSql()
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("updating node %q: %w", path, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Stale token, or the node does not exist at all. Either way the
		// caller has to re-read.
		s.cache.Remove(path)
		return schemastore.ErrNodeVersionMismatch
	}
	s.cache.Add(path, schemastore.Node{Content: content, Version: expectedVersion + 1})
	return nil
}

func (s *LocatorStore) Invalidate(path string) {
	s.cache.Remove(path)
}

// EnsureRoot creates the root marker node, tolerating concurrent creation.
func (s *LocatorStore) EnsureRoot(ctx context.Context, root string) error {
	err := s.Create(ctx, root, []byte{})
	if err != nil && err != schemastore.ErrNodeExists {
		return err
	}
	return nil
}

func (s *LocatorStore) Close() error {
	// The sqlx.DB is shared with the ledger store and owned by the caller
	// that opened it.
	return nil
}

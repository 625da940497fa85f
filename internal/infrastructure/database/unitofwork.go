package database

import (
	"context"
	"database/sql"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultIdentityMapSize is used when NewUnitOfWork is given a non-positive size.
const defaultIdentityMapSize = 256

// EntityKey identifies a loaded entity in a unit's identity map.
type EntityKey struct {
	Kind string
	ID   int64
}

// UnitOfWork scopes all persistence for a single request.
//
// Within one unit, loading the same entity twice yields the same object
// (identity map). Writes go through InTx and are committed or rolled back
// as a whole. After Close every operation fails with ErrUnitClosed.
//
// A unit is owned by one request and is not meant to be shared between
// goroutines, but Close may be called from a different goroutine than the
// one running queries.
type UnitOfWork struct {
	db *DB

	mu       sync.Mutex
	closed   bool
	tx       *sql.Tx
	identity *lru.Cache[EntityKey, any]
}

// NewUnitOfWork opens a unit of work whose identity map holds at most size
// entities.
func (db *DB) NewUnitOfWork(size int) *UnitOfWork {
	if size <= 0 {
		size = defaultIdentityMapSize
	}
	cache, err := lru.New[EntityKey, any](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &UnitOfWork{db: db, identity: cache}
}

// querier returns the active transaction if one is open, else the database.
func (u *UnitOfWork) querier() (Querier, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil, ErrUnitClosed
	}
	if u.tx != nil {
		return u.tx, nil
	}
	return u.db, nil
}

// Run executes fn with a querier bound to this unit. Inside InTx the
// querier is the open transaction.
func (u *UnitOfWork) Run(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	q, err := u.querier()
	if err != nil {
		return err
	}
	return fn(ctx, q)
}

// InTx runs fn inside a transaction owned by this unit. The transaction is
// committed when fn returns nil. On error it is rolled back and the identity
// map is purged, since entities loaded or modified inside it may be stale.
func (u *UnitOfWork) InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return ErrUnitClosed
	}
	if u.tx != nil {
		tx := u.tx
		u.mu.Unlock()
		return fn(ctx, tx)
	}
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		u.mu.Unlock()
		return err
	}
	u.tx = tx
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		u.tx = nil
		u.mu.Unlock()
	}()

	if err := fn(ctx, tx); err != nil {
		tx.Rollback() //nolint:errcheck // Original error takes precedence
		u.identity.Purge()
		return err
	}
	if err := tx.Commit(); err != nil {
		u.identity.Purge()
		return Wrap("committing unit of work", err)
	}
	return nil
}

// Lookup returns the entity cached under key, if any.
func (u *UnitOfWork) Lookup(key EntityKey) (any, bool) {
	return u.identity.Get(key)
}

// Remember caches v under key for the rest of the unit.
func (u *UnitOfWork) Remember(key EntityKey, v any) {
	u.identity.Add(key, v)
}

// Forget drops key from the identity map, typically after a delete.
func (u *UnitOfWork) Forget(key EntityKey) {
	u.identity.Remove(key)
}

// Close releases the unit. Any transaction still open is rolled back.
// Close is idempotent.
func (u *UnitOfWork) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.closed = true
	if u.tx != nil {
		u.tx.Rollback() //nolint:errcheck // Unit is being discarded
		u.tx = nil
	}
	u.identity.Purge()
}

// Closed reports whether Close has been called.
func (u *UnitOfWork) Closed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// Load returns the entity of type T under key, using the identity map when
// it already holds one and loader otherwise. A freshly loaded entity is
// remembered for the rest of the unit.
func Load[T any](ctx context.Context, u *UnitOfWork, key EntityKey, loader func(ctx context.Context, q Querier) (T, error)) (T, error) {
	var zero T
	if cached, ok := u.Lookup(key); ok {
		if v, ok := cached.(T); ok {
			return v, nil
		}
	}

	var loaded T
	err := u.Run(ctx, func(ctx context.Context, q Querier) error {
		v, err := loader(ctx, q)
		if err != nil {
			return err
		}
		loaded = v
		return nil
	})
	if err != nil {
		return zero, err
	}
	u.Remember(key, loaded)
	return loaded, nil
}

// Package database provides SQLite connectivity, schema migrations and the
// per-request unit of work for the access gateway.
//
// This package manages:
//   - Database connection with WAL mode and foreign keys
//   - Embedded, versioned schema migrations
//   - UnitOfWork: one per request, with an identity map and a single write transaction
//   - Classification of storage failures (IsStorageError)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	uow := db.NewUnitOfWork(cfg.Database.IdentityMapSize)
//	defer uow.Close()
//
// SQLite has a single writer, so the pool is limited to one connection.
// Code running inside UnitOfWork.InTx must use the querier it is handed.
package database

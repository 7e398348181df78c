// Package store provides persistent storage for comm-core using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with small
// interfaces composed into Store:
//
//   - DraftStore: per-thread unsent text
//   - MessageReader: message and media listing, bulk clear
//   - MessageWriter: message/media mutations, only reachable through a Tx
//   - CryptoStore: serialized crypto account and peer session blobs
//
// SQLiteStore implements all interfaces in a single struct.
//
// # Transactions
//
// There are no implicit transactions for message mutations. Callers open one
// with BeginTx, apply their writes to the returned Tx and finish with exactly
// one of Commit or Rollback:
//
//	tx, err := s.BeginTx(ctx)
//	if err != nil {
//		return err
//	}
//	if err := tx.ReplaceMessage(ctx, msg); err != nil {
//		_ = tx.Rollback()
//		return err
//	}
//	return tx.Commit()
//
// # Thread Affinity
//
// The store is only used from the storage worker. The SQLite pool is capped at
// one connection, so a transaction left open blocks every other call.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//
// # Testing
//
// Use NewMockStore() for unit tests. It supports failure injection per method
// through FailOn and counts opened transactions with TxCount.
//
// Use NewSQLiteStore(filepath.Join(t.TempDir(), "test.db")) for integration tests.
package store

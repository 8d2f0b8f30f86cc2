// Package store provides the interface for the durable single-table key-value
// store that backs the kvgate service, together with a unified error taxonomy.
//
// The package focuses on:
//   - A unified interface (IStore) over different storage engines
//   - A uniqueness constraint on keys that is enforced by the engine itself
//   - Typed errors so callers can map store outcomes to protocol results
//
// Key Components:
//
//   - IStore Interface: Put inserts a new record and fails if the key is already
//     present, Get reads a record. There is no update or delete, a record is
//     immutable once written.
//
//   - Error System: Every failure is a *Error with a RetCode. The three codes
//     relevant to callers are RetCKeyAlreadyExists, RetCKeyNotFound and
//     RetCUnavailable. The sentinels ErrKeyAlreadyExists, ErrKeyNotFound and
//     ErrBackingStoreUnavailable can be used with errors.Is.
//
// Implementations:
//
//	- SQL Store (sqlstore): A store built on bun that keeps all records in a
//	  single table key_value_store(key TEXT UNIQUE, value TEXT). Supports
//	  sqlite, postgres and mysql. The table is created on open if absent.
//	  Available in the "github.com/ValentinKolb/kvgate/lib/store/sqlstore" package.
//
//	- Redis Store (redisstore): Keeps all records in a single redis hash and
//	  resolves concurrent writers with HSETNX.
//	  Available in the "github.com/ValentinKolb/kvgate/lib/store/redisstore" package.
//
//	- Memory Store (memstore): A non-durable in-process store, useful for tests
//	  and local experiments.
//	  Available in the "github.com/ValentinKolb/kvgate/lib/store/memstore" package.
//
// The package also ships a reusable conformance suite in the storetest
// subpackage that every implementation runs in its own tests.
package store

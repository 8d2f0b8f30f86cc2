// Package sqlstore implements store.IStore on top of a relational database.
//
// All records live in the single table key_value_store(key TEXT UNIQUE, value TEXT)
// which is created on Open if it does not exist. The uniqueness of keys is
// enforced by the unique index, Put never checks for an existing record first.
//
// Supported databases are sqlite (modernc.org/sqlite), postgres (pgx) and
// mysql (go-sql-driver). Queries are built with bun.
package sqlstore

// Package redisstore implements store.IStore on a redis server.
//
// The table of the store is a single redis hash (key_value_store by default).
// Put uses HSETNX, so of several concurrent writers of the same key exactly
// one creates the field. Get uses HGET and maps redis.Nil to a not-found error.
package redisstore

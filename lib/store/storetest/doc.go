// Package storetest provides a reusable conformance suite for store.IStore
// implementations. Every implementation runs RunStoreTests from its own
// package tests with a factory that returns a fresh, empty store.
//
// The suite checks the properties every store must have: uniqueness of keys,
// round-trips, not-found for unknown keys, exactly one winner when several
// goroutines put the same key, and unavailable errors after Close.
package storetest

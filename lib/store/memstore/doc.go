// Package memstore implements a local, in-memory key-value store based on the
// store.IStore interface. Data is stored entirely in memory and is not persisted
// between process restarts.
//
// Key Features:
//   - Pure in-memory storage without persistence
//   - First-writer-wins uniqueness through xsync.MapOf.LoadOrStore
//   - Thread-safe operations for concurrent access
//
// Usage Example:
//
//	s := memstore.NewMemoryStore()
//	defer s.Close()
//
//	if err := s.Put(ctx, "a", "1"); err != nil {
//		// handle error
//	}
//	value, err := s.Get(ctx, "a")
//
// Suitable Use Cases:
//
//	The memory store is ideal for:
//	- Testing and development environments
//	- Observing the admission controller without a database in the way
//
// For durable storage use the sqlstore or redisstore packages.
package memstore

package memstore

import (
	"context"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

type storeImpl struct {
	records *xsync.MapOf[string, string]
	closed  atomic.Bool
}

// NewMemoryStore creates a new in-memory store instance.
// This store implementation is not durable and only lives as long as the process.
// Uniqueness of keys is resolved by the LoadOrStore operation of the underlying map.
func NewMemoryStore() store.IStore {
	return &storeImpl{
		records: xsync.NewMapOf[string, string](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Put(ctx context.Context, key, value string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if _, loaded := s.records.LoadOrStore(key, value); loaded {
		return store.Errorf(store.RetCKeyAlreadyExists, "key %q already exists", key)
	}
	return nil
}

func (s *storeImpl) Get(ctx context.Context, key string) (string, error) {
	if err := s.check(ctx); err != nil {
		return "", err
	}
	value, ok := s.records.Load(key)
	if !ok {
		return "", store.Errorf(store.RetCKeyNotFound, "no record for key %q", key)
	}
	return value, nil
}

func (s *storeImpl) Close() error {
	s.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// check returns an unavailable error if the store was closed or the context is done
func (s *storeImpl) check(ctx context.Context) error {
	if s.closed.Load() {
		return store.NewError(store.RetCUnavailable, "memory store is closed")
	}
	if err := ctx.Err(); err != nil {
		return store.Wrapf(err, store.RetCUnavailable, "memory store")
	}
	return nil
}

// Ping implements store.IPinger
func (s *storeImpl) Ping(ctx context.Context) error {
	return s.check(ctx)
}

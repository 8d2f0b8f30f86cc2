package redisstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
	"strings"
	"sync/atomic"
)

var Logger = logger.GetLogger("store")

// DefaultHash is the name of the redis hash holding all records
const DefaultHash = "key_value_store"

// Config configures the redis connection of the store
type Config struct {
	Addr     string
	Password string
	DB       int
	// Hash is the redis key of the hash that holds the records, DefaultHash if empty
	Hash string
}

// ParseURL builds a Config from a url like "redis://user:pw@host:6379/0" or
// from a plain "host:port" address
func ParseURL(url string) (Config, error) {
	if !strings.Contains(url, "://") {
		if url == "" {
			url = "localhost:6379"
		}
		return Config{Addr: url}, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return Config{}, fmt.Errorf("invalid redis url: %w", err)
	}
	return Config{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}

type storeImpl struct {
	rdb    *redis.Client
	hash   string
	closed atomic.Bool
}

// Open connects to redis and verifies the connection with a PING.
// The records of the store are the fields of a single hash.
func Open(ctx context.Context, config Config) (store.IStore, error) {
	hash := strings.TrimSpace(config.Hash)
	if hash == "" {
		hash = DefaultHash
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	s := &storeImpl{rdb: rdb, hash: hash}
	if err := s.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	n, err := rdb.HLen(ctx, hash).Result()
	if err != nil {
		_ = rdb.Close()
		return nil, store.Wrapf(err, store.RetCUnavailable, "failed to inspect hash %s", hash)
	}
	if n > 0 {
		Logger.Infof("Database already exists (%d records in %s)", n, hash)
	} else {
		Logger.Infof("Creating database (hash %s)", hash)
	}

	return s, nil
}

// NewFromClient creates a store on an existing redis client without checking the connection
func NewFromClient(rdb *redis.Client, hash string) store.IStore {
	if hash == "" {
		hash = DefaultHash
	}
	return &storeImpl{rdb: rdb, hash: hash}
}

// Ping implements store.IPinger
func (s *storeImpl) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return store.Wrapf(err, store.RetCUnavailable, "redis not reachable")
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *storeImpl) Put(ctx context.Context, key, value string) error {
	if s.closed.Load() {
		return store.Errorf(store.RetCUnavailable, "store is closed")
	}

	created, err := s.rdb.HSetNX(ctx, s.hash, key, value).Result()
	if err != nil {
		return store.Wrapf(err, store.RetCUnavailable, "failed to set key %q", key)
	}
	if !created {
		return store.Errorf(store.RetCKeyAlreadyExists, "key %q already exists", key)
	}
	return nil
}

func (s *storeImpl) Get(ctx context.Context, key string) (string, error) {
	if s.closed.Load() {
		return "", store.Errorf(store.RetCUnavailable, "store is closed")
	}

	value, err := s.rdb.HGet(ctx, s.hash, key).Result()
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, redis.Nil):
		return "", store.Errorf(store.RetCKeyNotFound, "no record for key %q", key)
	default:
		return "", store.Wrapf(err, store.RetCUnavailable, "failed to get key %q", key)
	}
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rdb.Close()
}

package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/ValentinKolb/kvgate/lib/store/storetest"
	"path/filepath"
	"sync/atomic"
	"testing"
)

var dbCounter atomic.Int64

// memoryDSN returns a fresh shared-cache in-memory sqlite database
func memoryDSN(name string) string {
	return fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1))
}

func Test(t *testing.T) {
	storetest.RunStoreTests(t, "SQLiteMemory", func(t testing.TB) store.IStore {
		s, err := Open(context.Background(), Config{Type: TypeSQLite, DSN: memoryDSN("suite")})
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		return s
	})
}

func TestFileDatabaseReopen(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "kv.db")

	s, err := Open(ctx, Config{Type: TypeSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	if err := s.Put(ctx, "a", "1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// the table already exists on the second open and the record survived
	s, err = Open(ctx, Config{Type: TypeSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer s.Close()

	if got, err := s.Get(ctx, "a"); err != nil || got != "1" {
		t.Fatalf("expected (1, nil) after reopen, got (%q, %v)", got, err)
	}
	if err := s.Put(ctx, "a", "2"); !errors.Is(err, store.ErrKeyAlreadyExists) {
		t.Fatalf("expected ErrKeyAlreadyExists after reopen, got %v", err)
	}
}

func TestPing(t *testing.T) {
	s, err := Open(context.Background(), Config{DSN: memoryDSN("ping")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer s.Close()

	p, ok := s.(store.IPinger)
	if !ok {
		t.Fatal("sql store does not implement store.IPinger")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestOpenUnsupportedType(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "oracle", DSN: "x"})
	if !errors.Is(err, store.ErrBackingStoreUnavailable) {
		t.Fatalf("expected ErrBackingStoreUnavailable, got %v", err)
	}
}

func TestOpenUnreachablePostgres(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, Config{Type: TypePostgres, DSN: "postgres://user:pw@127.0.0.1:1/db?connect_timeout=1"})
	if !errors.Is(err, store.ErrBackingStoreUnavailable) {
		t.Fatalf("expected ErrBackingStoreUnavailable, got %v", err)
	}
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url  string
		want Config
	}{
		{"", Config{Type: TypeSQLite, DSN: DefaultDSN}},
		{"sqlite://kv.db", Config{Type: TypeSQLite, DSN: "file:kv.db"}},
		{"file:other.db", Config{Type: TypeSQLite, DSN: "file:other.db"}},
		{"postgres://u:p@localhost/kv", Config{Type: TypePostgres, DSN: "postgres://u:p@localhost/kv"}},
		{"postgresql://u:p@localhost/kv", Config{Type: TypePostgres, DSN: "postgresql://u:p@localhost/kv"}},
		{"mysql://u:p@tcp(localhost:3306)/kv", Config{Type: TypeMySQL, DSN: "u:p@tcp(localhost:3306)/kv"}},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := ParseURL(tt.url); got != tt.want {
				t.Errorf("ParseURL(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}

func TestSqliteDSN(t *testing.T) {
	tests := map[string]string{
		":memory:":           ":memory:",
		"file:kv.db":         "file:kv.db?_pragma=busy_timeout(5000)",
		"file:x?mode=memory": "file:x?mode=memory&_pragma=busy_timeout(5000)",
		"file:y?_pragma=busy_timeout(10)": "file:y?_pragma=busy_timeout(10)",
	}
	for in, want := range tests {
		if got := sqliteDSN(in); got != want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("constraint failed: UNIQUE constraint failed: key_value_store.key (2067)"), true},
		{errors.New("Error 1062 (23000): Duplicate entry 'a' for key 'key'"), true},
		{errors.New(`ERROR: duplicate key value violates unique constraint "key_value_store_key_key"`), true},
		{errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), false},
		{errors.New("sql: database is closed"), false},
	}
	for _, tt := range tests {
		if got := isUniqueViolation(tt.err); got != tt.want {
			t.Errorf("isUniqueViolation(%q) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

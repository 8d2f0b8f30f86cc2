package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var Logger = logger.GetLogger("store")

// TableName is the name of the single table holding all records
const TableName = "key_value_store"

// record is a single row of the key_value_store table
type record struct {
	bun.BaseModel `bun:"table:key_value_store"`

	Key   string `bun:"key,type:text,unique"`
	Value string `bun:"value,type:text"`
}

// mysqlRecord only differs in the column type of the key, mysql can not put
// a unique index on a TEXT column without a prefix length.
type mysqlRecord struct {
	bun.BaseModel `bun:"table:key_value_store"`

	Key   string `bun:"key,type:varchar(255),unique"`
	Value string `bun:"value,type:text"`
}

// --------------------------------------------------------------------------
// Config
// --------------------------------------------------------------------------

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMySQL    = "mysql"
)

// DefaultDSN is the sqlite file used when no DSN is configured
const DefaultDSN = "file:kv.db"

// Config configures the connection pool of a sql store.
// Zero values for the pool settings select the defaults.
type Config struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	sqliteBusyTimeout      = 5000 // ms
)

// ParseURL derives the database type from a url like "sqlite://kv.db",
// "postgres://user:pw@host/db" or "mysql://user:pw@tcp(host)/db".
// Urls without a known scheme are treated as sqlite DSNs.
func ParseURL(url string) Config {
	switch {
	case strings.HasPrefix(url, "sqlite://"):
		return Config{Type: TypeSQLite, DSN: "file:" + strings.TrimPrefix(url, "sqlite://")}
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return Config{Type: TypePostgres, DSN: url}
	case strings.HasPrefix(url, "mysql://"):
		return Config{Type: TypeMySQL, DSN: strings.TrimPrefix(url, "mysql://")}
	case url == "":
		return Config{Type: TypeSQLite, DSN: DefaultDSN}
	default:
		return Config{Type: TypeSQLite, DSN: url}
	}
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// sqliteDSN adds the busy timeout pragma so that concurrent writers wait for
// the file lock instead of failing with SQLITE_BUSY
func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", dsn, sep, sqliteBusyTimeout)
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

type storeImpl struct {
	db     *bun.DB
	mysql  bool
	closed atomic.Bool
}

// Open connects to the database described by config, verifies the connection
// and creates the key_value_store table if it does not exist.
// A failure at any of these steps is returned as ErrBackingStoreUnavailable.
func Open(ctx context.Context, config Config) (store.IStore, error) {
	var (
		driverName string
		dsn        = config.DSN
		dialect    schema.Dialect
	)

	switch config.Type {
	case TypeSQLite, "":
		if dsn == "" {
			dsn = DefaultDSN
		}
		driverName, dialect, dsn = "sqlite", sqlitedialect.New(), sqliteDSN(dsn)
	case TypePostgres:
		// the pgx stdlib registers driver name "pgx"
		driverName, dialect = "pgx", pgdialect.New()
	case TypeMySQL:
		driverName, dialect = "mysql", mysqldialect.New()
	default:
		return nil, store.Errorf(store.RetCUnavailable, "unsupported database type %q", config.Type)
	}

	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, store.Wrapf(err, store.RetCUnavailable, "failed to open database")
	}

	maxOpen, maxIdle, connMax := defaultMaxOpenConns, defaultMaxIdleConns, defaultConnMaxLifetime
	if config.MaxOpenConns > 0 {
		maxOpen = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		maxIdle = config.MaxIdleConns
	}
	if config.ConnMaxLifetime > 0 {
		connMax = config.ConnMaxLifetime
	}
	// every connection to an in-memory sqlite database sees its own database,
	// and the database is gone once the last connection closes
	if driverName == "sqlite" && isMemoryDSN(dsn) {
		maxOpen, maxIdle, connMax = 1, 1, 0
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(connMax)

	s := &storeImpl{
		db:    bun.NewDB(sqlDB, dialect),
		mysql: config.Type == TypeMySQL,
	}

	if err := s.Ping(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}
	if err := s.createTable(ctx); err != nil {
		_ = s.db.Close()
		return nil, err
	}

	return s, nil
}

// Ping verifies that the database is reachable
func (s *storeImpl) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Wrapf(err, store.RetCUnavailable, "database not reachable")
	}
	return nil
}

func (s *storeImpl) tableExists(ctx context.Context) bool {
	var one int
	err := s.db.NewSelect().
		Table(TableName).
		ColumnExpr("1").
		Limit(1).
		Scan(ctx, &one)
	return err == nil || errors.Is(err, sql.ErrNoRows)
}

func (s *storeImpl) createTable(ctx context.Context) error {
	if s.tableExists(ctx) {
		Logger.Infof("Database already exists")
		return nil
	}
	Logger.Infof("Creating database")

	var model interface{} = (*record)(nil)
	if s.mysql {
		model = (*mysqlRecord)(nil)
	}
	if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
		return store.Wrapf(err, store.RetCUnavailable, "failed to create table %s", TableName)
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

	_, err := s.db.NewInsert().
		Model(&record{Key: key, Value: value}).
		Exec(ctx)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return store.Errorf(store.RetCKeyAlreadyExists, "key %q already exists: %v", key, err)
	}
	return store.Wrapf(err, store.RetCUnavailable, "failed to insert key %q", key)
}

func (s *storeImpl) Get(ctx context.Context, key string) (string, error) {
	if s.closed.Load() {
		return "", store.Errorf(store.RetCUnavailable, "store is closed")
	}

	var rec record
	err := s.db.NewSelect().
		Model(&rec).
		Where("? = ?", bun.Ident("key"), key).
		Limit(1).
		Scan(ctx)
	switch {
	case err == nil:
		return rec.Value, nil
	case errors.Is(err, sql.ErrNoRows):
		return "", store.Errorf(store.RetCKeyNotFound, "no record for key %q", key)
	default:
		return "", store.Wrapf(err, store.RetCUnavailable, "failed to select key %q", key)
	}
}

func (s *storeImpl) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// --------------------------------------------------------------------------
// Error Mapping
// --------------------------------------------------------------------------

// isUniqueViolation reports whether err was caused by the unique index on the key column
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == 1062 {
		return true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}

	// without extended result codes sqlite only reports SQLITE_CONSTRAINT
	le := strings.ToLower(err.Error())
	return strings.Contains(le, "unique constraint") ||
		strings.Contains(le, "duplicate entry") ||
		strings.Contains(le, "duplicate key")
}

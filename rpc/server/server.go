package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/admission"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/ValentinKolb/kvgate/lib/store/memstore"
	"github.com/ValentinKolb/kvgate/lib/store/redisstore"
	"github.com/ValentinKolb/kvgate/lib/store/sqlstore"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/serializer"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"net/http"
	"strings"
	"sync"
	"time"
)

var Logger = logger.GetLogger("rpc")

// openTimeout bounds connecting to the backing store at startup
const openTimeout = 30 * time.Second

// Option configures optional parts of the server
type Option func(*rpcServer)

// WithStore makes the server use s instead of opening the store described by
// the config. The caller keeps ownership, the server does not close s.
func WithStore(s store.IStore) Option {
	return func(srv *rpcServer) {
		srv.store = s
		srv.ownsStore = false
	}
}

// WithAdapter replaces the adapter translating Messages into service calls
func WithAdapter(adapter IRPCServerAdapter) Option {
	return func(srv *rpcServer) {
		srv.adapter = adapter
	}
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	opts ...Option,
) *rpcServer {
	s := &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewKeyValueServerAdapter(),
		ownsStore:  true,
	}
	for _, opt := range opts {
		opt(s)
	}

	Logger.Infof("Created RPC Server")

	return s
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	mu        sync.Mutex // protects the fields below, set by init and read by Shutdown
	store     store.IStore
	ownsStore bool
	service   *kvservice.KeyValueService
	opsServer *http.Server
}

func (s *rpcServer) registerTransportHandler() {
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	s.transport.RegisterHandler(func(ctx context.Context, req []byte) []byte {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(
				kvservice.CodeInvalid,
				fmt.Sprintf("failed to deserialize request: %s", err),
			)
		} else {
			// Let the adapter handle the request
			respMsg = s.adapter.Handle(ctx, &msg, s.service)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(
				kvservice.CodeUnavailable,
				fmt.Sprintf("failed to serialize response: %s", err),
			))
		}
		return val
	})
}

func (s *rpcServer) init() error {
	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}
	Logger.Infof("%s", s.config.String())

	s.mu.Lock()
	defer s.mu.Unlock()

	// Open the backing store, a failure here aborts the startup
	if s.store == nil {
		ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
		defer cancel()

		st, err := openStore(ctx, s.config.Store)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", s.config.Store.Type, err)
		}
		s.store = st
	}

	controller, err := admission.New(s.config.Admission)
	if err != nil {
		return err
	}

	s.service = kvservice.New(controller, s.store, kvservice.Options{
		WorkDelay:    s.config.WorkDelay,
		CoarseErrors: s.config.CoarseErrors,
	})

	Logger.Infof("kvgate setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	// Expose /metrics and /healthz
	if mounter, ok := s.transport.(transport.IHTTPMounter); ok {
		registerOpsRoutes(mounter, s.store)
	} else if s.config.MetricsEndpoint != "" {
		mux := http.NewServeMux()
		registerOpsRoutes(mux, s.store)
		s.opsServer = &http.Server{
			Addr:              s.config.MetricsEndpoint,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func(srv *http.Server) {
			Logger.Infof("Starting metrics server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Errorf("metrics server failed: %v", err)
			}
		}(s.opsServer)
	}

	return nil
}

// Serve starts the RPC server
// This function will also open the store and start the transport layer.
// It blocks until the server is shut down.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Shutdown stops the transport, waiting for running requests until ctx ends,
// and closes the store if the server opened it
func (s *rpcServer) Shutdown(ctx context.Context) error {
	Logger.Infof("Shutting down RPC Server")
	err := s.transport.Shutdown(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opsServer != nil {
		if opsErr := s.opsServer.Shutdown(ctx); opsErr != nil && err == nil {
			err = opsErr
		}
		s.opsServer = nil
	}

	if s.ownsStore && s.store != nil {
		if closeErr := s.store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		s.store = nil
	}
	return err
}

// --------------------------------------------------------------------------
// Store Factory
// --------------------------------------------------------------------------

// openStore opens the backing store selected by config
func openStore(ctx context.Context, config common.StoreConfig) (store.IStore, error) {
	switch config.Type {
	case common.StoreTypeMemory:
		Logger.Warningf("using the in-memory store, records are lost on shutdown")
		return memstore.NewMemoryStore(), nil

	case common.StoreTypeRedis:
		redisConfig, err := redisstore.ParseURL(config.URL)
		if err != nil {
			return nil, err
		}
		return redisstore.Open(ctx, redisConfig)

	case common.StoreTypeSQLite, common.StoreTypePostgres, common.StoreTypeMySQL, "":
		sqlConfig, err := sqlConfigFor(config)
		if err != nil {
			return nil, err
		}
		return sqlstore.Open(ctx, sqlConfig)

	default:
		return nil, fmt.Errorf("unsupported store type %q", config.Type)
	}
}

// sqlConfigFor derives the sql store config. A url with a scheme must match
// the configured type, other values are used as DSN of the configured type.
func sqlConfigFor(config common.StoreConfig) (sqlstore.Config, error) {
	storeType := config.Type
	if storeType == "" {
		storeType = common.StoreTypeSQLite
	}

	sqlConfig := sqlstore.Config{Type: storeType, DSN: config.URL}
	if strings.Contains(config.URL, "://") {
		sqlConfig = sqlstore.ParseURL(config.URL)
		if sqlConfig.Type != storeType {
			return sqlstore.Config{}, fmt.Errorf("url %q does not match store type %s", config.URL, storeType)
		}
	}
	sqlConfig.MaxOpenConns = config.MaxOpenConns
	return sqlConfig, nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/admission"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/lib/store"
	"github.com/ValentinKolb/kvgate/lib/store/memstore"
	"github.com/ValentinKolb/kvgate/rpc/client"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/serializer"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	httpTransport "github.com/ValentinKolb/kvgate/rpc/transport/http"
	"github.com/ValentinKolb/kvgate/rpc/transport/tcp"
	"github.com/ValentinKolb/kvgate/rpc/transport/unix"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func testConfig(endpoint string) common.ServerConfig {
	return common.ServerConfig{
		Endpoint:      endpoint,
		TimeoutSecond: 5,
		Socket:        common.DefaultSocketConf(),
		Store:         common.StoreConfig{Type: common.StoreTypeMemory},
		Admission:     admission.DefaultConfig(),
		LogLevel:      "error",
	}
}

func clientConfig(endpoint string) common.ClientConfig {
	return common.ClientConfig{
		Endpoints:              []string{endpoint},
		TimeoutSecond:          5,
		RetryCount:             3,
		ConnectionsPerEndpoint: 2,
		Socket:                 common.DefaultSocketConf(),
	}
}

// runScenario runs put(a,1), put(a,2), get(a), get(b) against kv
func runScenario(t *testing.T, kv kvservice.IKeyValue) {
	t.Helper()
	ctx := context.Background()

	if err := kv.Store(ctx, "a", "1"); err != nil {
		t.Fatalf("store(a,1) failed: %v", err)
	}
	if err := kv.Store(ctx, "a", "2"); !errors.Is(err, kvservice.ErrAlreadyExists) {
		t.Fatalf("store(a,2): expected already_exists, got %v", err)
	}
	if v, err := kv.Retrieve(ctx, "a"); err != nil || v != "1" {
		t.Fatalf("retrieve(a): expected (1, nil), got (%q, %v)", v, err)
	}
	if _, err := kv.Retrieve(ctx, "b"); !errors.Is(err, kvservice.ErrNotFound) {
		t.Fatalf("retrieve(b): expected not_found, got %v", err)
	}
}

// serveInBackground starts s and returns a function that shuts it down
func serveInBackground(t *testing.T, s *rpcServer) func() {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve returned an error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("Serve did not return after shutdown")
		}
	}
}

// connect retries until the server accepts connections
func connect(t *testing.T, config common.ClientConfig, newTransport func() transport.IRPCClientTransport) *client.RPCKeyValue {
	t.Helper()
	var lastErr error
	for i := 0; i < 100; i++ {
		kv, err := client.NewRPCKeyValue(config, newTransport(), serializer.NewBinarySerializer())
		if err == nil {
			return kv
		}
		lastErr = err
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("failed to connect to %v: %v", config.Endpoints, lastErr)
	return nil
}

func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

// captureTransport records the registered handler so tests can call it directly
type captureTransport struct {
	handler transport.ServerHandleFunc
}

func (c *captureTransport) RegisterHandler(handler transport.ServerHandleFunc) { c.handler = handler }
func (c *captureTransport) Listen(common.ServerConfig) error                   { return nil }
func (c *captureTransport) Shutdown(context.Context) error                     { return nil }

// call sends msg through the handler of c and decodes the response
func (c *captureTransport) call(t *testing.T, ser serializer.IRPCSerializer, msg *common.Message) *common.Message {
	t.Helper()
	req, err := ser.Serialize(*msg)
	if err != nil {
		t.Fatalf("failed to serialize request: %v", err)
	}
	var resp common.Message
	if err := ser.Deserialize(c.handler(context.Background(), req), &resp); err != nil {
		t.Fatalf("failed to deserialize response: %v", err)
	}
	return &resp
}

// --------------------------------------------------------------------------
// Transports
// --------------------------------------------------------------------------

func TestHTTPScenario(t *testing.T) {
	tr := httpTransport.NewHttpServerTransport()
	s := NewRPCServer(testConfig(""), tr, serializer.NewBinarySerializer(), WithStore(memstore.NewMemoryStore()))
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	ts := httptest.NewServer(tr.Handler())
	defer ts.Close()

	kv := connect(t, clientConfig(ts.URL), httpTransport.NewHttpClientTransport)
	defer kv.Close()

	runScenario(t, kv)

	t.Run("Metrics", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/metrics")
		if err != nil {
			t.Fatalf("GET /metrics failed: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		for _, want := range []string{
			`kvgate_requests_total{op="store",code="ok"}`,
			`kvgate_requests_total{op="store",code="already_exists"}`,
			`kvgate_admission_admitted_total{policy="concurrency"}`,
		} {
			if !strings.Contains(string(body), want) {
				t.Errorf("expected /metrics to contain %s", want)
			}
		}
	})

	t.Run("Healthz", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected status 200, got %d", resp.StatusCode)
		}
	})

	t.Run("GetOnRPCRoute", func(t *testing.T) {
		resp, err := http.Get(ts.URL + httpTransport.RPCPath)
		if err != nil {
			t.Fatalf("GET %s failed: %v", httpTransport.RPCPath, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", resp.StatusCode)
		}
	})
}

func TestTCPScenario(t *testing.T) {
	addr := freeTCPAddr(t)
	s := NewRPCServer(testConfig(addr), tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
	stop := serveInBackground(t, s)
	defer stop()

	kv := connect(t, clientConfig(addr), tcp.NewTCPClientTransport)
	defer kv.Close()

	runScenario(t, kv)
}

func TestUnixScenario(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "kv.sock")
	s := NewRPCServer(testConfig(socket), unix.NewUnixDefaultServerTransport(), serializer.NewBinarySerializer())
	stop := serveInBackground(t, s)
	defer stop()

	kv := connect(t, clientConfig(socket), unix.NewUnixClientTransport)
	defer kv.Close()

	runScenario(t, kv)
}

func TestTCPConcurrentPutRace(t *testing.T) {
	addr := freeTCPAddr(t)
	config := testConfig(addr)
	config.Admission = admission.Config{Policy: admission.PolicyConcurrency, Max: 4}

	s := NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
	stop := serveInBackground(t, s)
	defer stop()

	kv := connect(t, clientConfig(addr), tcp.NewTCPClientTransport)
	defer kv.Close()

	const writers = 16
	var wg sync.WaitGroup
	var successes, conflicts atomic.Int64
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := kv.Store(context.Background(), "race", fmt.Sprintf("writer-%d", i))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, kvservice.ErrAlreadyExists):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes.Load() != 1 || conflicts.Load() != writers-1 {
		t.Errorf("expected 1 success and %d conflicts, got %d and %d", writers-1, successes.Load(), conflicts.Load())
	}
}

// --------------------------------------------------------------------------
// Request Handling
// --------------------------------------------------------------------------

func TestHandlerRequestValidation(t *testing.T) {
	tr := &captureTransport{}
	ser := serializer.NewBinarySerializer()
	s := NewRPCServer(testConfig(""), tr, ser, WithStore(memstore.NewMemoryStore()))
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	var resp common.Message
	if err := ser.Deserialize(tr.handler(context.Background(), []byte{0xff, 0xff}), &resp); err != nil {
		t.Fatalf("failed to deserialize response: %v", err)
	}
	if resp.MsgType != common.MsgTError || resp.Code != kvservice.CodeInvalid {
		t.Errorf("expected an invalid error response, got %+v", resp)
	}

	unknown := tr.call(t, ser, &common.Message{MsgType: common.MsgTSuccess, Key: "a"})
	if unknown.Code != kvservice.CodeInvalid {
		t.Errorf("expected code invalid for an unsupported type, got %s", unknown.Code)
	}

	if stored := tr.call(t, ser, common.NewStoreRequest("", "x")); stored.Status() != nil {
		t.Errorf("expected the empty key to be stored, got %v", stored.Status())
	}
	retrieved := tr.call(t, ser, common.NewRetrieveRequest(""))
	if retrieved.Status() != nil || retrieved.Value != "x" {
		t.Errorf("expected (x, nil) for the empty key, got (%q, %v)", retrieved.Value, retrieved.Status())
	}
}

// peakStore records the peak number of concurrent Put calls
type peakStore struct {
	store.IStore
	current atomic.Int64
	peak    atomic.Int64
}

func (p *peakStore) Put(ctx context.Context, key, value string) error {
	n := p.current.Add(1)
	defer p.current.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return p.IStore.Put(ctx, key, value)
}

func TestHandlerAdmissionBound(t *testing.T) {
	tr := &captureTransport{}
	ser := serializer.NewGOBSerializer()
	st := &peakStore{IStore: memstore.NewMemoryStore()}

	config := testConfig("")
	config.Admission = admission.Config{Policy: admission.PolicyConcurrency, Max: 2}
	s := NewRPCServer(config, tr, ser, WithStore(st))
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := tr.call(t, ser, common.NewStoreRequest(fmt.Sprintf("k%d", i), "v"))
			if err := resp.Status(); err != nil {
				t.Errorf("store k%d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if peak := st.peak.Load(); peak > 2 {
		t.Errorf("expected at most 2 concurrent store calls, got %d", peak)
	}
}

func TestHandlerRequestTimeout(t *testing.T) {
	tr := &captureTransport{}
	ser := serializer.NewJSONSerializer()

	config := testConfig("")
	config.TimeoutSecond = 1
	config.WorkDelay = 5 * time.Second
	s := NewRPCServer(config, tr, ser, WithStore(memstore.NewMemoryStore()))
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	start := time.Now()
	resp := tr.call(t, ser, common.NewStoreRequest("slow", "x"))
	if !errors.Is(resp.Status(), kvservice.ErrCanceled) {
		t.Errorf("expected canceled after the request timeout, got %v", resp.Status())
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("request was not abandoned at the timeout, took %s", elapsed)
	}
}

// --------------------------------------------------------------------------
// Store Factory
// --------------------------------------------------------------------------

func TestSQLConfigFor(t *testing.T) {
	tests := []struct {
		config  common.StoreConfig
		typ     string
		dsn     string
		wantErr bool
	}{
		{common.StoreConfig{}, "sqlite", "", false},
		{common.StoreConfig{Type: "sqlite", URL: "file:kv.db"}, "sqlite", "file:kv.db", false},
		{common.StoreConfig{Type: "sqlite", URL: "sqlite://data/kv.db"}, "sqlite", "file:data/kv.db", false},
		{common.StoreConfig{Type: "postgres", URL: "postgres://u:p@db/kv"}, "postgres", "postgres://u:p@db/kv", false},
		{common.StoreConfig{Type: "mysql", URL: "u:p@tcp(db:3306)/kv"}, "mysql", "u:p@tcp(db:3306)/kv", false},
		{common.StoreConfig{Type: "mysql", URL: "postgres://u:p@db/kv"}, "", "", true},
	}

	for _, tt := range tests {
		got, err := sqlConfigFor(tt.config)
		if tt.wantErr {
			if err == nil {
				t.Errorf("sqlConfigFor(%+v): expected an error", tt.config)
			}
			continue
		}
		if err != nil {
			t.Errorf("sqlConfigFor(%+v) failed: %v", tt.config, err)
			continue
		}
		if got.Type != tt.typ || got.DSN != tt.dsn {
			t.Errorf("sqlConfigFor(%+v): expected (%s, %s), got (%s, %s)", tt.config, tt.typ, tt.dsn, got.Type, got.DSN)
		}
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	if _, err := openStore(ctx, common.StoreConfig{Type: "cassandra"}); err == nil {
		t.Error("expected an error for an unsupported store type")
	}

	st, err := openStore(ctx, common.StoreConfig{Type: common.StoreTypeSQLite, URL: "file:server_open_store?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	defer st.Close()

	if err := st.Put(ctx, "a", "1"); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if v, err := st.Get(ctx, "a"); err != nil || v != "1" {
		t.Fatalf("get: expected (1, nil), got (%q, %v)", v, err)
	}
}

func TestShutdownClosesOwnedStore(t *testing.T) {
	s := NewRPCServer(testConfig(""), &captureTransport{}, serializer.NewBinarySerializer())
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	st := s.store

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if err := st.Put(context.Background(), "a", "1"); !errors.Is(err, store.ErrBackingStoreUnavailable) {
		t.Errorf("expected the store to be closed, got %v", err)
	}
}

func TestShutdownKeepsInjectedStore(t *testing.T) {
	st := memstore.NewMemoryStore()
	defer st.Close()

	s := NewRPCServer(testConfig(""), &captureTransport{}, serializer.NewBinarySerializer(), WithStore(st))
	if err := s.init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if err := st.Put(context.Background(), "a", "1"); err != nil {
		t.Errorf("expected the injected store to stay open, got %v", err)
	}
}

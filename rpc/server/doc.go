// Package server implements the kvgate RPC server. It wires the configured
// backing store, the admission controller and the key-value service together
// and exposes the service through a transport.
//
// Request flow:
//
//	transport (ctx) -> serializer -> IRPCServerAdapter -> kvservice.KeyValueService
//	  -> admission.Admit -> work delay -> store.IStore -> outcome -> Message -> serializer
//
// Every request runs with a context that ends when the caller disconnects or
// the per-request timeout (ServerConfig.TimeoutSecond) passes. Every outcome,
// including undecodable requests, is answered with a Message carrying a
// kvservice.Code.
//
// Key Components:
//
//   - IRPCServerAdapter: translates a request Message into a call on a
//     kvservice.IKeyValue. NewKeyValueServerAdapter is the default.
//
//   - NewRPCServer: creates a server for a transport and a serializer. The
//     backing store is opened by Serve from ServerConfig.Store, WithStore
//     injects an existing one instead.
//
//   - Ops routes: GET /metrics (Prometheus text format) and GET /healthz (pings
//     the store). They are mounted on the http transport itself, for tcp and
//     unix on a separate listener at ServerConfig.MetricsEndpoint.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  Store:         common.StoreConfig{Type: common.StoreTypeSQLite, URL: "file:kv.db"},
//	  Admission:     admission.DefaultConfig(),
//	  WorkDelay:     kvservice.DefaultWorkDelay,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	go func() {
//	  if err := s.Serve(); err != nil {
//	    log.Fatalf("Server error: %v", err)
//	  }
//	}()
//	...
//	_ = s.Shutdown(ctx)
package server

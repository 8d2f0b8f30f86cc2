// Package client implements the RPC client of kvgate. RPCKeyValue implements
// kvservice.IKeyValue, so code written against the service runs unchanged
// against a remote server.
//
// Errors:
//
//	Every error of Store and Retrieve is a *kvservice.StatusError. The outcome
//	reported by the server keeps its code (already_exists, not_found, ...).
//	A request that could not be delivered is reported as unavailable, a request
//	whose context ended as canceled. Check outcomes with errors.Is:
//
//	  if errors.Is(err, kvservice.ErrAlreadyExists) { ... }
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	kv, err := client.NewRPCKeyValue(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer kv.Close()
//
//	_ = kv.Store(ctx, "a", "1")
//	value, err := kv.Retrieve(ctx, "a")
//
// Performance Considerations:
//
//   - For applications that send many concurrent requests, increasing
//     ConnectionsPerEndpoint lets the tcp and unix transports spread them over
//     several connections.
//
//   - The binary serializer produces the smallest payloads.
//
// Thread Safety:
//
//	RPCKeyValue can be used concurrently from multiple goroutines.
package client

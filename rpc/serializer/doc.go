// Package serializer converts rpc messages to bytes and back. The transports
// only move opaque byte slices, client and server must use the same serializer.
//
// Key Components:
//
//   - IRPCSerializer: Core interface that all serializer implementations must satisfy.
//
//   - binarySerializerImpl: Custom binary format that writes a flag byte and only
//     the fields that are set. Smallest payloads and fastest, the default.
//
//   - jsonSerializerImpl: JSON encoding, message types and codes are written by
//     name. Useful for debugging and for calling the http transport with curl.
//
//   - gobSerializerImpl: Go's gob encoding. Larger payloads than binary and
//     slower than both other formats, kept for compatibility.
//
// All serializers are stateless and safe for concurrent use.
//
// Usage:
//
//	serializer := serializer.NewBinarySerializer()
//	data, err := serializer.Serialize(*common.NewStoreRequest("key", "value"))
//	// ... send data ...
//	var resp common.Message
//	err = serializer.Deserialize(receivedData, &resp)
package serializer

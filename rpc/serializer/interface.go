package serializer

import (
	"fmt"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"strings"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into msg.
	// Fields of msg that are not present in b are reset.
	Deserialize(b []byte, msg *common.Message) error
}

// ByName returns the serializer with the given name (binary, json or gob)
func ByName(name string) (IRPCSerializer, error) {
	switch strings.ToLower(name) {
	case "binary", "":
		return NewBinarySerializer(), nil
	case "json":
		return NewJSONSerializer(), nil
	case "gob":
		return NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("unknown serializer: %s (expected binary, json or gob)", name)
	}
}

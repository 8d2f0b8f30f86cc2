package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/rpc/common"
)

// NewBinarySerializer creates a new serializer using a compact custom binary format
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
//
//	1 byte msg type | 1 byte flags | [key] | [value] | [1 byte code] | [err]
//
// Strings are written as a 4 byte big endian length followed by the bytes.
// Only fields whose flag is set are present.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey   byte = 1 << 0
	hasValue byte = 1 << 1
	hasCode  byte = 1 << 2
	hasErr   byte = 1 << 3
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != "" {
		flags |= hasKey
		result = appendString(result, msg.Key)
	}
	if msg.Value != "" {
		flags |= hasValue
		result = appendString(result, msg.Value)
	}
	if msg.Code != kvservice.CodeOK {
		flags |= hasCode
		result = append(result, byte(msg.Code))
	}
	if msg.Err != "" {
		flags |= hasErr
		result = appendString(result, msg.Err)
	}

	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := data[1]
	pos := 2

	var err error
	if flags&hasKey != 0 {
		if msg.Key, pos, err = readString(data, pos); err != nil {
			return fmt.Errorf("invalid key: %w", err)
		}
	}
	if flags&hasValue != 0 {
		if msg.Value, pos, err = readString(data, pos); err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
	}
	if flags&hasCode != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for code")
		}
		msg.Code = kvservice.Code(data[pos])
		pos++
	}
	if flags&hasErr != 0 {
		if msg.Err, pos, err = readString(data, pos); err != nil {
			return fmt.Errorf("invalid error message: %w", err)
		}
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-pos)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 2 // msg type + flags
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != "" {
		size += 4 + len(msg.Value)
	}
	if msg.Code != kvservice.CodeOK {
		size++
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	return size
}

// appendString appends a length prefixed string
func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// readString reads a length prefixed string at pos and returns the position after it
func readString(data []byte, pos int) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for length")
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n > len(data)-pos {
		return "", pos, fmt.Errorf("length %d exceeds remaining %d bytes", n, len(data)-pos)
	}
	return string(data[pos : pos+n]), pos + n, nil
}

package serializer

import (
	"bytes"
	"encoding/gob"
	"github.com/ValentinKolb/kvgate/rpc/common"
)

// NewGOBSerializer creates a new serializer using Go's binary gob format
func NewGOBSerializer() IRPCSerializer {
	return &gobSerializerImpl{}
}

type gobSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	// gob skips zero fields, decode into a fresh message so nothing stale survives
	var decoded common.Message
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&decoded); err != nil {
		return err
	}
	*msg = decoded
	return nil
}

package serializer

import (
	"encoding/json"
	"github.com/ValentinKolb/kvgate/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (j jsonSerializerImpl) Deserialize(b []byte, msg *common.Message) error {
	var decoded common.Message
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	*msg = decoded
	return nil
}

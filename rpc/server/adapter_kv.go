package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/rpc/common"
)

// NewKeyValueServerAdapter creates the adapter translating Messages into IKeyValue calls
func NewKeyValueServerAdapter() IRPCServerAdapter {
	return &kvServerAdapterImpl{}
}

type kvServerAdapterImpl struct{}

func (adapter *kvServerAdapterImpl) Handle(ctx context.Context, req *common.Message, kv kvservice.IKeyValue) *common.Message {
	if kv == nil {
		return common.NewErrorResponse(kvservice.CodeUnavailable, "handler: service is nil")
	}

	switch req.MsgType {
	case common.MsgTStore:
		err := kv.Store(ctx, req.Key, req.Value)
		return common.NewStoreResponse(err)
	case common.MsgTRetrieve:
		val, err := kv.Retrieve(ctx, req.Key)
		return common.NewRetrieveResponse(val, err)
	default:
		return common.NewErrorResponse(
			kvservice.CodeInvalid,
			fmt.Sprintf("unsupported message type: %s", req.MsgType),
		)
	}
}

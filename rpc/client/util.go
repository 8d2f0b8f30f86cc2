package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/serializer"
	"github.com/ValentinKolb/kvgate/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter stores all data needed by an RPC client implementation
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest serializes req, sends it and deserializes the response.
// Transport failures are reported as kvservice.CodeUnavailable, or as
// kvservice.CodeCanceled if ctx ended. The outcome carried by the response is
// returned as *kvservice.StatusError.
func invokeRPCRequest(ctx context.Context, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, kvservice.NewStatusError(kvservice.CodeInvalid, fmt.Sprintf("failed to serialize request: %v", err))
	}

	respBytes, err := transport.Send(ctx, reqBytes)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, kvservice.NewStatusError(kvservice.CodeCanceled, err.Error())
		}
		Logger.Debugf("RPC %s request failed: %v", req.MsgType, err)
		return nil, kvservice.NewStatusError(kvservice.CodeUnavailable, err.Error())
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, kvservice.NewStatusError(kvservice.CodeUnavailable, fmt.Sprintf("failed to deserialize response: %v", err))
	}

	if err := resp.Status(); err != nil {
		return nil, err
	}

	if resp.MsgType != req.MsgType {
		return nil, kvservice.NewStatusError(kvservice.CodeUnavailable,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	return resp, nil
}

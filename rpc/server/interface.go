package server

import (
	"context"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the service as parameters.
	// It returns a Message as a response
	// If an error occurs, its code and message are set in the response
	Handle(ctx context.Context, req *common.Message, kv kvservice.IKeyValue) (resp *common.Message)
}

package client

import (
	"context"
	"github.com/ValentinKolb/kvgate/lib/kvservice"
	"github.com/ValentinKolb/kvgate/rpc/common"
	"github.com/ValentinKolb/kvgate/rpc/serializer"
	"github.com/ValentinKolb/kvgate/rpc/transport"
)

// RPCKeyValue is a kvservice.IKeyValue whose operations run on a remote kvgate server
type RPCKeyValue struct {
	rpcClientAdapter
}

// NewRPCKeyValue connects the transport and returns a client for the key-value service.
// All errors returned by Store and Retrieve are *kvservice.StatusError.
func NewRPCKeyValue(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCKeyValue, error) {

	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	return &RPCKeyValue{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see kvservice.IKeyValue)
// --------------------------------------------------------------------------

func (c *RPCKeyValue) Store(ctx context.Context, key, value string) error {
	req := common.NewStoreRequest(key, value)
	_, err := invokeRPCRequest(ctx, req, c.transport, c.serializer)
	return err
}

func (c *RPCKeyValue) Retrieve(ctx context.Context, key string) (string, error) {
	req := common.NewRetrieveRequest(key)
	resp, err := invokeRPCRequest(ctx, req, c.transport, c.serializer)
	if err != nil {
		return "", err
	}
	return resp.Value, nil
}

// Close closes the underlying transport
func (c *RPCKeyValue) Close() error {
	return c.transport.Close()
}

var _ kvservice.IKeyValue = (*RPCKeyValue)(nil)

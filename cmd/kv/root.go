package kv

import (
	"github.com/ValentinKolb/kvgate/cmd/util"
	"github.com/ValentinKolb/kvgate/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcKV *client.RPCKeyValue

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(storeCmd)
	KeyValueCommands.AddCommand(retrieveCmd)
	KeyValueCommands.AddCommand(loadCmd)
}

// setupKVClient initializes the RPC client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetClientTransport()
	if err != nil {
		return err
	}

	rpcKV, err = client.NewRPCKeyValue(
		*config,
		t,
		s,
	)

	return err
}

func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcKV == nil {
		return nil
	}
	return rpcKV.Close()
}

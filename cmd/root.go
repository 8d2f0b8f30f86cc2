package cmd

import (
	"fmt"
	"github.com/ValentinKolb/kvgate/cmd/kv"
	"github.com/ValentinKolb/kvgate/cmd/serve"
	"github.com/ValentinKolb/kvgate/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvgate",
		Short: "key-value store with admission control",
		Long: fmt.Sprintf(`kvgate (v%s)

A remote key-value store backed by a single sql table (or redis hash),
protected by an admission controller that bounds concurrent or
sustained load on the backing store.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvgate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvgate v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

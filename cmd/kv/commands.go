package kv

import (
	"fmt"
	"github.com/spf13/cobra"
)

var (
	storeCmd = &cobra.Command{
		Use:   "store [key] [value]",
		Short: "Creates a record, fails if the key already exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if err := rpcKV.Store(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Println("stored successfully")
			return nil
		},
	}
	retrieveCmd = &cobra.Command{
		Use:   "retrieve [key]",
		Short: "Reads the value of a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := rpcKV.Retrieve(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, value=%s\n", key, value)
			return nil
		},
	}
)

package kv

import (
	"context"
	"fmt"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/util"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/client"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcConn  *client.Connection
	rpcStore *client.StoreProxy

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform store operations",
		PersistentPreRunE:  setupKVClient,
		PersistentPostRunE: closeKVClient,
	}
)

func init() {
	// Add common RPC flags to the KV command
	util.SetupRPCClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(listCmd)
	KeyValueCommands.AddCommand(persistCmd)
	KeyValueCommands.AddCommand(restoreCmd)
	KeyValueCommands.AddCommand(createCmd)
	KeyValueCommands.AddCommand(authCmd)
	KeyValueCommands.AddCommand(indexCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient dials the server and selects the configured store
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	// Get client configuration components
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

	rpcConn, err = client.Dial(cmd.Context(), "cli", *config, t, s)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", config.Endpoint, err)
	}

	// authenticate first so the command runs on an authenticated connection
	if token := viper.GetString("id-token"); token != "" {
		subject, err := rpcConn.Authenticate(cmd.Context(), token)
		if err != nil {
			rpcConn.Close()
			return err
		}
		util.Logger.Infof("authenticated as %s", subject)
	}

	rpcStore = rpcConn.Store(util.GetStoreName())
	return nil
}

// closeKVClient closes the connection after the command ran
func closeKVClient(_ *cobra.Command, _ []string) error {
	if rpcConn == nil {
		return nil
	}
	return rpcConn.Close()
}

// barrier waits until the server processed every request sent before it.
// The server handles the requests of a connection in order, so the reply to a
// list request proves that the unacknowledged requests before it were applied.
func barrier(ctx context.Context) error {
	_, err := rpcStore.List(ctx)
	return err
}

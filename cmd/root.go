package cmd

import (
	"fmt"
	"os"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/kv"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/serve"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "2.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "aci",
		Short: "named key-value stores over one persistent connection",
		Long: fmt.Sprintf(`ACI (v%s)

The ACRONYM Communications Interface: a server holding named JSON
key-value stores in memory, snapshotting them to disk on request,
and a client multiplexing many calls over one persistent connection.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of ACI",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ACI v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper and the env files once for all commands
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "ws", util.WrapString("transport to use (ws, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

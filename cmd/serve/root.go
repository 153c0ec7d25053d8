package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/util"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/auth"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/registry"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store/boltstore"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/lib/store/lstore"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the ACI server",
		Long:    `Start the ACI server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is ACI_<flag> (e.g. ACI_DATA_DIR=/var/lib/aci)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8765", cmdUtil.WrapString("The address on which the server will listen (e.g. localhost:8765, /tmp/aci.sock, ...)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for storing the store snapshots"))

	key = "stores"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of stores to restore from the data directory on startup"))

	key = "config-store"
	ServeCmd.PersistentFlags().String(key, "config", cmdUtil.WrapString("Store restored on startup whose 'dbs' key lists further stores to restore. Set to an empty string to disable"))

	key = "persist-on-shutdown"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Write all stores to the data directory when the server stops"))

	key = "require-auth"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Reject store operations on connections that did not authenticate with g_auth"))

	key = "auth-client-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("OAuth client id the Google id tokens must be issued for. Without it every g_auth is rejected"))

	key = "auth-domain"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Required hosted domain (hd claim) of the id tokens, empty accepts any domain"))

	key = "auth-issuers"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Comma-separated list of accepted token issuers, empty uses Google's issuers"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Listen address of the admin http server exposing /metrics, /healthz and /stores, empty disables it"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Idle timeout of a connection in seconds, 0 disables it"))

	key = "max-frame"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxFrameBytes, cmdUtil.WrapString("The largest accepted frame in bytes"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.RestoreStores = cmdUtil.SplitList(viper.GetString("stores"))
	serveCmdConfig.ConfigStore = viper.GetString("config-store")
	serveCmdConfig.PersistOnShutdown = viper.GetBool("persist-on-shutdown")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxFrameBytes = viper.GetInt("max-frame")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	serveCmdConfig.Auth = common.AuthConfig{
		ClientID:     viper.GetString("auth-client-id"),
		HostedDomain: viper.GetString("auth-domain"),
		Issuers:      cmdUtil.SplitList(viper.GetString("auth-issuers")),
		Required:     viper.GetBool("require-auth"),
	}

	if serveCmdConfig.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if serveCmdConfig.TimeoutSecond < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", serveCmdConfig.TimeoutSecond)
	}
	if serveCmdConfig.Auth.Required && serveCmdConfig.Auth.ClientID == "" {
		return fmt.Errorf("require-auth needs auth-client-id, otherwise no connection could authenticate")
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the ACI server and blocks until SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	persister, err := boltstore.NewPersister(serveCmdConfig.DataDir)
	if err != nil {
		return err
	}
	reg := registry.NewStoreRegistry(lstore.NewFactory(persister), lstore.NewLoader(persister))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier auth.IAuthVerifier
	if conf := serveCmdConfig.Auth; conf.ClientID != "" {
		verifier, err = auth.NewGoogleVerifier(ctx, conf.ClientID, conf.HostedDomain, conf.Issuers)
		if err != nil {
			return err
		}
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
		reg,
		verifier,
	)

	return serv.Serve(ctx)
}

package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/common"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/serializer"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/tcp"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/unix"
	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/rpc/transport/ws"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the commands
	EnvPrefix = "aci"
)

var Logger = logger.GetLogger("cli")

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, common.DefaultTimeoutSecond, WrapString("The timeout in seconds for dialing and for each reply"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8765", WrapString("The address of the ACI server (host:port, a socket path for unix or a ws:// url for ws)"))

	key = "store"
	cmd.PersistentFlags().String(key, "main", WrapString("The name of the store to operate on"))

	key = "max-frame"
	cmd.PersistentFlags().Int(key, common.DefaultMaxFrameBytes, WrapString("The largest accepted frame in bytes"))

	key = "id-token"
	cmd.PersistentFlags().String(key, "", WrapString("If set, the connection authenticates with this id token before running the command"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("The level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads the env files and makes viper read ACI_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Endpoint:      viper.GetString("endpoint"),
		TimeoutSecond: viper.GetInt("timeout"),
		MaxFrameBytes: viper.GetInt("max-frame"),
	}
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "ws":
		return ws.NewWSClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "ws":
		return ws.NewWSServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetStoreName retrieves the configured store name
func GetStoreName() string {
	return viper.GetString("store")
}

// SplitList splits a comma-separated flag value, dropping empty items
func SplitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ParseValue interprets a command line argument as a JSON value.
// Arguments that are not valid JSON are stored as a JSON string.
func ParseValue(arg string) json.RawMessage {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	encoded, _ := json.Marshal(arg) // a string always encodes
	return encoded
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

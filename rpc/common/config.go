package common

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultMaxFrameBytes is the largest frame accepted by the transports if not configured
	DefaultMaxFrameBytes = 4 * 1024 * 1024
	// DefaultTimeoutSecond bounds the wait for a reply if not configured
	DefaultTimeoutSecond = 10
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// AuthConfig configures the verification of g_auth id tokens
type AuthConfig struct {
	// ClientID is the audience the id tokens must be issued for. Empty disables verification (all tokens are rejected).
	ClientID string
	// HostedDomain is the required hd claim, empty accepts any domain
	HostedDomain string
	// Issuers are the accepted iss values, empty uses Google's issuers
	Issuers []string
	// Required rejects store operations on connections without a successful g_auth
	Required bool
}

// ServerConfig holds all configuration parameters of the server
type ServerConfig struct {
	// Endpoint the transport listens on (host:port, socket path for unix)
	Endpoint string
	// TimeoutSecond is the idle timeout of a connection, 0 disables it
	TimeoutSecond int64
	// MaxFrameBytes is the largest accepted frame
	MaxFrameBytes int

	// DataDir is the directory for store snapshots
	DataDir string
	// RestoreStores are restored from DataDir on startup
	RestoreStores []string
	// ConfigStore is restored on startup, its "dbs" key lists more stores to restore. Empty disables it.
	ConfigStore string
	// PersistOnShutdown writes all stores to disk when the server stops
	PersistOnShutdown bool

	// Auth configuration
	Auth AuthConfig

	// MetricsEndpoint is the listen address of the admin http server (metrics, health), empty disables it
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Timeout returns the idle timeout as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// FrameLimit returns the configured frame limit or the default
func (c *ServerConfig) FrameLimit() int {
	if c.MaxFrameBytes > 0 {
		return c.MaxFrameBytes
	}
	return DefaultMaxFrameBytes
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	orNone := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Idle Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Frame", fmt.Sprintf("%d bytes", c.FrameLimit()))

	// Storage
	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Restore On Start", orNone(strings.Join(c.RestoreStores, ", ")))
	addField("Config Store", orNone(c.ConfigStore))
	addField("Persist On Shutdown", fmt.Sprintf("%t", c.PersistOnShutdown))

	// Auth
	addSection("Authentication")
	addField("Client ID", orNone(c.Auth.ClientID))
	addField("Hosted Domain", orNone(c.Auth.HostedDomain))
	addField("Required", fmt.Sprintf("%t", c.Auth.Required))

	// Admin
	addSection("Admin")
	addField("Metrics Endpoint", orNone(c.MetricsEndpoint))

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	// Endpoint of the server (host:port, socket path or ws:// url depending on the transport)
	Endpoint string
	// TimeoutSecond bounds dialing and the wait for each reply
	TimeoutSecond int
	// MaxFrameBytes is the largest accepted frame
	MaxFrameBytes int
}

// Timeout returns the reply timeout as a duration, falling back to the default
func (c *ClientConfig) Timeout() time.Duration {
	if c.TimeoutSecond > 0 {
		return time.Duration(c.TimeoutSecond) * time.Second
	}
	return DefaultTimeoutSecond * time.Second
}

// FrameLimit returns the configured frame limit or the default
func (c *ClientConfig) FrameLimit() int {
	if c.MaxFrameBytes > 0 {
		return c.MaxFrameBytes
	}
	return DefaultMaxFrameBytes
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	sb.WriteString("\nCLIENT CONFIGURATION\n")
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Endpoint", c.Endpoint))
	sb.WriteString(fmt.Sprintf("  %-22s: %s\n", "Timeout", c.Timeout()))
	sb.WriteString(fmt.Sprintf("  %-22s: %d bytes\n", "Max Frame", c.FrameLimit()))

	return sb.String()
}

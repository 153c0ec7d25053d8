// Package cmd implements the command-line interface of ACI. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for store operations (get, set, list, persist, restore, create, index ...)
//   - serve: Commands for starting and configuring the ACI server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the ACI_ prefix
// (e.g. ACI_DATA_DIR=/var/lib/aci). See aci -help for a list of all commands.
package cmd

package kv

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd/util"
	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Long:  "Sets the value for a key. Values that are not valid JSON are stored as a JSON string.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := util.ParseValue(args[1])
			if err := rpcStore.SetAndWait(cmd.Context(), key, value); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			resp, err := rpcStore.Get(cmd.Context(), key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, val=%s\n", key, resp)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the keys of the store in insertion order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := rpcStore.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, key := range keys {
				fmt.Println(key)
			}
			return nil
		},
	}
	persistCmd = &cobra.Command{
		Use:   "persist",
		Short: "Writes the store (or with --all every store) to disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if all {
				// no reply and no store to use as barrier, the frame is written
				if err := rpcConn.PersistAll(); err != nil {
					return err
				}
				fmt.Println("persist of all stores requested")
				return nil
			}

			if err := rpcStore.Persist(); err != nil {
				return err
			}
			if err := barrier(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("persist requested")
			return nil
		},
	}
	restoreCmd = &cobra.Command{
		Use:   "restore",
		Short: "Replaces the store with its last snapshot from disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Restore(); err != nil {
				return err
			}
			// the server only logs a failed restore, a store that never existed shows up as unknown here
			if err := barrier(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("restored successfully")
			return nil
		},
	}
	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Creates an empty store, replacing an existing one with the same name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.Create(); err != nil {
				return err
			}
			if err := barrier(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("created successfully")
			return nil
		},
	}
	authCmd = &cobra.Command{
		Use:   "auth [id-token]",
		Short: "Verifies an id token with the server and prints the subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, err := rpcConn.Authenticate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("subject=%s\n", subject)
			return nil
		},
	}
)

// --------------------------------------------------------------------------
// Index commands (values that are JSON arrays)
// --------------------------------------------------------------------------

var (
	indexCmd = &cobra.Command{
		Use:   "index",
		Short: "Operate on values that are JSON arrays",
	}
	indexGetCmd = &cobra.Command{
		Use:   "get [key] [index]",
		Short: "Reads one element of a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			resp, err := rpcStore.GetIndex(cmd.Context(), args[0], index)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, index=%d, val=%s\n", args[0], index, resp)
			return nil
		},
	}
	indexSetCmd = &cobra.Command{
		Use:   "set [key] [index] [value]",
		Short: "Replaces one element of a list",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			if err := rpcStore.SetIndexAndWait(cmd.Context(), args[0], index, util.ParseValue(args[2])); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	indexAppendCmd = &cobra.Command{
		Use:   "append [key] [value]",
		Short: "Appends an element to a list, a missing key starts a new list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcStore.AppendIndex(cmd.Context(), args[0], util.ParseValue(args[1])); err != nil {
				return err
			}
			fmt.Println("appended successfully")
			return nil
		},
	}
	indexLenCmd = &cobra.Command{
		Use:   "len [key]",
		Short: "Prints the length of a list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rpcStore.LenIndex(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, len=%d\n", args[0], n)
			return nil
		},
	}
	indexRecentCmd = &cobra.Command{
		Use:   "recent [key] [num]",
		Short: "Prints the last num elements of a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("num must be a number: %w", err)
			}
			items, err := rpcStore.RecentIndex(cmd.Context(), args[0], num)
			if err != nil {
				return err
			}
			encoded, err := json.Marshal(items)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, val=%s\n", args[0], encoded)
			return nil
		},
	}
)

func init() {
	persistCmd.Flags().Bool("all", false, util.WrapString("Persist every store of the server"))

	indexCmd.AddCommand(indexGetCmd)
	indexCmd.AddCommand(indexSetCmd)
	indexCmd.AddCommand(indexAppendCmd)
	indexCmd.AddCommand(indexLenCmd)
	indexCmd.AddCommand(indexRecentCmd)
}

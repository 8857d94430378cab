/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/suparena/kvstore"
	"github.com/suparena/kvstore/datastore"
	"github.com/suparena/kvstore/errors"
	"github.com/suparena/kvstore/storagemodels"
)

func (c *cli) putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <attr:value>...",
		Short: "Store a key with attributes",
		Long: `Stores key with the given attributes, replacing any previous value.

Each value is typed on its own: true/false are booleans, whole numbers are
integers, other numbers are floats and everything else is a string. The put
fails without changes if any attribute conflicts with its registered type.

Example:
  kvstore put user:1 name:alice age:30 score:9.5 active:true`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := parseAttributePairs(args[1:])
			if err != nil {
				return err
			}
			store, err := c.openStore()
			if err != nil {
				return err
			}
			if err := store.Put(args[0], pairs); err != nil {
				return err
			}
			if err := c.afterWrite(); err != nil {
				return err
			}

			if c.jsonOutput {
				return c.printStatus(cmd.OutOrStdout(), "status", "success", "key", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %q with %d attributes\n", args[0], len(pairs))
			return nil
		},
	}
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key> [attr]",
		Short: "Print the attributes of a key, or a single attribute",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			if len(args) == 2 {
				v, err := c.mgr.GetAttribute(c.token, args[0], args[1])
				if err != nil {
					return err
				}
				if c.jsonOutput {
					return c.printJSON(cmd.OutOrStdout(), nativeValue(v))
				}
				fmt.Fprintln(cmd.OutOrStdout(), storagemodels.FormatAttributeValue(v))
				return nil
			}

			view, ok := store.Get(args[0])
			if !ok {
				return errors.NewKeyNotFoundError("key", args[0])
			}
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), nativeAttributes(view))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: {%s}\n", args[0], view.String())
			return nil
		},
	}
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			deleted := store.Delete(args[0])
			if deleted {
				if err := c.afterWrite(); err != nil {
					return err
				}
			}

			if c.jsonOutput {
				return c.printStatus(cmd.OutOrStdout(), "deleted", deleted)
			}
			if !deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "key %q not found\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %q\n", args[0])
			return nil
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "search <attr> <value>",
		Aliases: []string{"find"},
		Short:   "List keys whose attribute equals value",
		Long: `Lists the keys whose attribute equals value in its canonical text form:
integers without a decimal point, booleans as true/false.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			return c.printKeys(cmd, store.Search(args[0], args[1]))
		},
	}
}

func (c *cli) keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			return c.printKeys(cmd, store.Keys())
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every key and forget all attribute types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			store.Clear()
			if err := c.afterWrite(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "store cleared")
			return nil
		},
	}
}

func (c *cli) saveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save [filename]",
		Short: "Save the store to a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.openStore(); err != nil {
				return err
			}
			filename := c.file
			if len(args) == 1 {
				filename = args[0]
			}
			if err := c.mgr.SaveStore(c.token, filename); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved to %s\n", c.mgr.ResolvePath(c.token, filename))
			return nil
		},
	}
}

func (c *cli) loadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <filename>",
		Short: "Replace the store with the contents of a file and save it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.openStore(); err != nil {
				return err
			}
			// a missing source must not wipe the store through the save below
			path := c.mgr.ResolvePath(c.token, args[0])
			if _, err := os.Stat(path); err != nil {
				return errors.NewPersistenceError("load", path, err)
			}
			if err := c.mgr.LoadStore(c.token, args[0]); err != nil {
				return err
			}
			store := c.mgr.GetOrCreateStore(c.token)
			if err := c.mgr.SaveStore(c.token, c.file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d keys from %s\n", store.Size(), path)
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			stats := store.Stats()
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), stats)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "store:      %s\n", c.token)
			fmt.Fprintf(out, "file:       %s\n", c.mgr.ResolvePath(c.token, c.file))
			fmt.Fprintf(out, "keys:       %d\n", stats.Keys)
			fmt.Fprintf(out, "attributes: %d\n", stats.Attributes)
			fmt.Fprintf(out, "types:      %d\n", len(stats.Types))
			fmt.Fprintf(out, "autosave:   %t\n", stats.Autosave)
			return nil
		},
	}
}

func (c *cli) typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "Show the registered type of every attribute name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			types := store.Types()
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), types)
			}
			names := make([]string, 0, len(types))
			for name := range types {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, types[name])
			}
			return nil
		},
	}
}

func (c *cli) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <key>",
		Short: "Show every attribute of a key with its type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			view, ok := store.Get(args[0])
			if !ok {
				return errors.NewKeyNotFoundError("key", args[0])
			}
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), nativeAttributes(view))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "key:        %s\n", args[0])
			fmt.Fprintf(out, "attributes: %d\n", view.Len())
			for _, name := range view.AttributeNames() {
				v, _ := view.Attribute(name)
				t, _ := storagemodels.TypeOf(v)
				text := storagemodels.FormatAttributeValue(v)
				if t == storagemodels.TypeString {
					text = fmt.Sprintf("%q", text)
				}
				fmt.Fprintf(out, "  %s = %s (%s)\n", name, text, t)
			}
			return nil
		},
	}
}

func (c *cli) autosaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "autosave <on|off>",
		Short:     "Turn saving after every write on or off for this store",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch strings.ToLower(args[0]) {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("expected on or off, got %q", args[0])
			}

			store, err := c.openStore()
			if err != nil {
				return err
			}
			store.SetAutosave(enabled)
			// the flag lives in the file, so it is always written
			if err := c.mgr.SaveStore(c.token, c.file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "autosave %s\n", strings.ToLower(args[0]))
			return nil
		},
	}
}

func (c *cli) tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List the stores in the storage directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := c.mgr.LoadAll(cmd.Context())
			if err != nil {
				return err
			}
			sort.Strings(tokens)

			if c.jsonOutput {
				sizes := make(map[string]int, len(tokens))
				for _, token := range tokens {
					s, _ := c.mgr.Lookup(token)
					sizes[token] = s.Size()
				}
				return c.printJSON(cmd.OutOrStdout(), sizes)
			}
			for _, token := range tokens {
				s, _ := c.mgr.Lookup(token)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d keys\n", token, s.Size())
			}
			return nil
		},
	}
}

func (c *cli) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Copy the store to the DynamoDB snapshot table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := c.openStore()
			if err != nil {
				return err
			}
			snapshots, err := c.newSnapshots(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			info, err := snapshots.Backup(cmd.Context(), c.token, store)
			if err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d keys at %s\n", info.SnapshotID, info.Keys, info.SavedAt)
			return nil
		},
	}
}

func (c *cli) restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Replace the store with its DynamoDB snapshot and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := c.mgr.GetOrCreateStore(c.token)
			snapshots, err := c.newSnapshots(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			info, err := snapshots.Restore(cmd.Context(), c.token, store)
			if err != nil {
				return err
			}
			if err := c.mgr.SaveStore(c.token, c.file); err != nil {
				return err
			}
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d keys from snapshot %s\n", store.Size(), info.SnapshotID)
			return nil
		},
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v := kvstore.GetVersionInfo()
			if c.jsonOutput {
				return c.printJSON(cmd.OutOrStdout(), v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

// parseAttributePairs splits name:value arguments at the first colon.
func parseAttributePairs(args []string) ([]storagemodels.AttributePair, error) {
	pairs := make([]storagemodels.AttributePair, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid attribute %q: expected name:value", arg)
		}
		pairs = append(pairs, storagemodels.AttributePair{Name: name, Value: value})
	}
	return pairs, nil
}

func (c *cli) printKeys(cmd *cobra.Command, keys []string) error {
	if c.jsonOutput {
		return c.printJSON(cmd.OutOrStdout(), keys)
	}
	for _, key := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), key)
	}
	return nil
}

// nativeAttributes converts a value to plain Go values for JSON output.
func nativeAttributes(view datastore.ValueView) map[string]any {
	out := make(map[string]any, view.Len())
	for name, v := range view.Attributes() {
		out[name] = nativeValue(v)
	}
	return out
}

func nativeValue(v storagemodels.AttributeValue) any {
	switch tv := v.(type) {
	case *storagemodels.AttributeValueMemberS:
		return tv.Value
	case *storagemodels.AttributeValueMemberI:
		return tv.Value
	case *storagemodels.AttributeValueMemberF:
		return tv.Value
	case *storagemodels.AttributeValueMemberB:
		return tv.Value
	}
	return nil
}

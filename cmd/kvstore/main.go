/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Command kvstore runs single store operations from the shell:
//
//	kvstore put user:1 name:alice age:30 active:true
//	kvstore get user:1
//	kvstore --store tenant-b search age 30
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/suparena/kvstore"
	"github.com/suparena/kvstore/config"
	"github.com/suparena/kvstore/datastore"
	"github.com/suparena/kvstore/datastore/ddb"
)

// cli holds the flags and the state built before each command runs.
type cli struct {
	// Global flags
	configPath string
	token      string
	file       string
	jsonOutput bool
	noAutosave bool
	verbose    bool

	cfg    *config.Config
	mgr    *kvstore.StoreManager
	logger *zap.Logger

	// newSnapshots builds the DynamoDB backend; tests swap in a mock table.
	newSnapshots func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ddb.SnapshotStore, error)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&cli{newSnapshots: dynamoSnapshots})
}

func buildRootCmd(c *cli) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kvstore",
		Short: "Typed multi-tenant key/value store",
		Long: `kvstore keeps named stores of typed attribute bags in JSON files.

Each command loads the selected store from its file, runs, and saves the
store again after a write when the store's autosave flag is on.

The first value written for an attribute name fixes its type (string,
integer, float or boolean) for the whole store.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "kvstore.yaml", "configuration file")
	flags.StringVarP(&c.token, "store", "s", "", "store token (default from config)")
	flags.StringVarP(&c.file, "file", "f", "", "store file (default <storage_dir>/<token>.json)")
	flags.BoolVarP(&c.jsonOutput, "json", "j", false, "print JSON output")
	flags.BoolVar(&c.noAutosave, "no-autosave", false, "do not save after writes")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		c.putCmd(),
		c.getCmd(),
		c.deleteCmd(),
		c.searchCmd(),
		c.keysCmd(),
		c.clearCmd(),
		c.saveCmd(),
		c.loadCmd(),
		c.statsCmd(),
		c.typesCmd(),
		c.inspectCmd(),
		c.autosaveCmd(),
		c.tokensCmd(),
		c.backupCmd(),
		c.restoreCmd(),
		c.versionCmd(),
	)
	return rootCmd
}

// setup loads configuration, builds the logger and the store manager.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.token == "" {
		c.token = cfg.DefaultToken
	}

	level, _ := cfg.LogLevel()
	if c.verbose {
		level = zapcore.DebugLevel
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c.cfg = cfg
	c.logger = logger.With(zap.String("store", c.token))
	c.mgr = kvstore.NewStoreManager(
		kvstore.WithStorageDir(cfg.StorageDir),
		kvstore.WithLogger(c.logger),
	)
	return nil
}

// openStore loads the selected store from its file. A store without a file
// starts empty with the configured autosave default.
func (c *cli) openStore() (*datastore.Store, error) {
	path := c.mgr.ResolvePath(c.token, c.file)
	_, statErr := os.Stat(path)

	if err := c.mgr.LoadStore(c.token, c.file); err != nil {
		return nil, err
	}
	store := c.mgr.GetOrCreateStore(c.token)
	if os.IsNotExist(statErr) {
		store.SetAutosave(c.cfg.Autosave)
	}
	return store, nil
}

// afterWrite saves the store when its autosave flag is on.
func (c *cli) afterWrite() error {
	if c.noAutosave {
		return nil
	}
	saved, err := c.mgr.SaveIfAutosave(c.token, c.file)
	if err != nil {
		return err
	}
	if saved {
		c.logger.Debug("autosaved", zap.String("path", c.mgr.ResolvePath(c.token, c.file)))
	}
	return nil
}

func (c *cli) printJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(pretty.Pretty(data))
	return err
}

func dynamoSnapshots(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ddb.SnapshotStore, error) {
	if err := cfg.ValidateDynamoDB(); err != nil {
		return nil, err
	}
	d := cfg.DynamoDB
	client, err := ddb.NewDynamoDBClient(ctx, d.AccessKeyID, d.SecretAccessKey, d.Region, d.Endpoint)
	if err != nil {
		return nil, err
	}
	logger.Debug("DynamoDB client initialized", zap.String("table", d.Table), zap.String("region", d.Region))
	return ddb.NewSnapshotStore(client, d.Table, ddb.WithLogger(logger)), nil
}

// printStatus prints a flat JSON object built from alternating field names
// and values.
func (c *cli) printStatus(w io.Writer, fields ...any) error {
	doc := "{}"
	for i := 0; i+1 < len(fields); i += 2 {
		var err error
		doc, err = sjson.Set(doc, fmt.Sprint(fields[i]), fields[i+1])
		if err != nil {
			return err
		}
	}
	_, err := w.Write(pretty.Pretty([]byte(doc)))
	return err
}

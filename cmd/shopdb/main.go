// ABOUTME: Entry point for the shopdb administrative CLI
// ABOUTME: Opens the configured block store and dispatches cobra subcommands

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/shopdb/internal/blockstore"
	"github.com/2389/shopdb/internal/config"
	"github.com/2389/shopdb/internal/instance"
	"github.com/2389/shopdb/internal/notify"
)

// version is set at build time via -ldflags.
var version = "dev"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
	Instance   string
}

// app is the opened environment shared by commands that touch a store.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	blocks   *blockstore.SQLiteBlocks
	bus      *notify.Bus
	registry *instance.Registry
}

func openApp(opts *rootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.Logging, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	blocks, err := blockstore.NewSQLiteBlocks(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("opening block store: %w", err)
	}

	bus := notify.NewBus(logger)
	registry, err := instance.NewRegistry(blocks, bus, instance.Options{
		BackupInterval: cfg.Storage.BackupInterval,
		Logger:         logger,
	},
		instance.PrivilegedProfile(instance.Bootstrap{
			AdminEmail:    cfg.Bootstrap.AdminEmail,
			AdminPassword: cfg.Bootstrap.AdminPassword,
		}).WithStorageKey(cfg.Storage.PrivilegedKey),
		instance.TenantProfile().WithStorageKey(cfg.Storage.TenantKey),
	)
	if err != nil {
		bus.Close()
		blocks.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, blocks: blocks, bus: bus, registry: registry}, nil
}

// instance opens the instance named by the --instance flag.
func (a *app) instance(ctx context.Context, name string) (*instance.Instance, error) {
	id, err := instance.ParseIdentity(name)
	if err != nil {
		return nil, err
	}
	return a.registry.Get(ctx, id)
}

// Close flushes pending writes before releasing storage.
func (a *app) Close() error {
	err := a.registry.Close()
	a.bus.Close()
	if cerr := a.blocks.Close(); err == nil {
		err = cerr
	}
	return err
}

// withApp runs fn against an opened app and closes it afterwards.
func withApp(opts *rootOptions, cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(opts, cmd)
	if err != nil {
		return err
	}
	ferr := fn(cmd.Context(), a)
	if cerr := a.Close(); ferr == nil {
		ferr = cerr
	}
	return ferr
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "shopdb",
		Short:         "Administer the embedded privileged and tenant stores",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", config.DefaultPath(), "config file (yaml or toml)")
	cmd.PersistentFlags().StringVarP(&opts.Instance, "instance", "i", string(instance.Tenant), "store instance (privileged|tenant)")

	cmd.AddCommand(
		newInitCommand(opts),
		newQueryCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newBackupCommand(opts),
		newBackupsCommand(opts),
		newRestoreCommand(opts),
		newAuditCommand(opts),
		newInspectCommand(),
	)
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/connector/registry"
	"github.com/discordwell/ticketbridge/pkg/export"
	"github.com/discordwell/ticketbridge/pkg/logger"
	"github.com/discordwell/ticketbridge/pkg/models"
	"github.com/discordwell/ticketbridge/pkg/sandbox"
	"github.com/discordwell/ticketbridge/pkg/syncer"

	// Import all available source adapters to register them
	_ "github.com/discordwell/ticketbridge/pkg/connector/sources/freshdesk"
	_ "github.com/discordwell/ticketbridge/pkg/connector/sources/intercom"
	_ "github.com/discordwell/ticketbridge/pkg/connector/sources/zendesk"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var logLevel string

	root := &cobra.Command{
		Use:   "ticketbridge",
		Short: "ticketbridge - multi-source helpdesk ticket ingestion and synchronization",
		Long: `ticketbridge ingests tickets, conversations, customers, organizations,
knowledge-base articles and automation rules from hosted helpdesk systems
into a canonical JSONL dataset, and synchronizes local changes back.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init(logger.Config{Level: logLevel})
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ticketbridge v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available source adapters",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available source adapters:")
			for _, source := range registry.ListSources() {
				fmt.Printf("  - %s\n", source)
			}
		},
	})

	root.AddCommand(newVerifyCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newSandboxCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSource reads an adapter config file and builds the registered source.
func loadSource(configFile string) (core.Source, *config.BaseConfig, error) {
	var cfg config.BaseConfig
	if err := config.Load(configFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to load config %s: %w", configFile, err)
	}

	source, err := registry.CreateSource(cfg.Type, &cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create source adapter '%s': %w", cfg.Type, err)
	}
	return source, &cfg, nil
}

func newVerifyCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify connectivity and credentials for a source",
		RunE: func(cmd *cobra.Command, args []string) error {
			source, _, err := loadSource(configFile)
			if err != nil {
				return err
			}
			defer source.Close(cmd.Context())

			result := source.Verify(cmd.Context())
			output, _ := json.MarshalIndent(result, "", "  ")
			fmt.Println(string(output))

			if !result.Success {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to source configuration YAML file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newExportCmd() *cobra.Command {
	var configFile, outputDir string
	var timeout time.Duration
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a source into canonical JSONL files",
		Long: `Export runs a full ingestion for one source: tickets with their
conversation threads, then customers, organizations, knowledge-base
articles and automation rules where the source exposes them. Records land
in <output>/<source>/ as JSONL, described by a manifest.json.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, cfg, err := loadSource(configFile)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			defer source.Close(ctx)

			if metricsAddr != "" && cfg.Observability.EnableMetrics {
				go serveMetrics(metricsAddr)
			}

			if outputDir == "" {
				outputDir = cfg.OutputDir
			}
			if outputDir == "" {
				outputDir = "./export"
			}

			pipeline := export.NewPipeline(source, outputDir, logger.Get())
			manifest, err := pipeline.Run(ctx)
			if manifest != nil {
				output, _ := json.MarshalIndent(manifest, "", "  ")
				fmt.Println(string(output))
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to source configuration YAML file (required)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Export directory (defaults to output_dir from the config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Hour, "Export timeout")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var configFile, stateDir string
	var interval time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the synchronization worker for a source",
		Long: `Sync pushes locally queued changes back to the hosted system on a fixed
interval. Each cycle drains the outbox, compares pending changes against
current hosted state, reports conflicts, and pushes the clean remainder.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, cfg, err := loadSource(configFile)
			if err != nil {
				return err
			}
			defer source.Close(cmd.Context())

			mutator, ok := source.(core.Mutator)
			if !ok {
				return fmt.Errorf("source adapter '%s' does not support outbound mutations", cfg.Type)
			}

			outbox, err := syncer.NewOutbox(stateDir)
			if err != nil {
				return err
			}

			worker, err := syncer.NewWorker(syncer.WorkerConfig{
				Outbox:   outbox,
				Fetch:    hostedSnapshotFetcher(source),
				Mutator:  mutator,
				Interval: interval,
				Logger:   logger.Get(),
				OnCycle: func(result *syncer.CycleResult) {
					for _, conflict := range result.Conflicts {
						logger.Warn("conflict detected",
							zap.String("entity_id", conflict.EntityID),
							zap.String("reason", conflict.Reason))
					}
				},
			})
			if err != nil {
				return err
			}

			if once {
				result, err := worker.RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				output, _ := json.MarshalIndent(result, "", "  ")
				fmt.Println(string(output))
				return nil
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			worker.Start(ctx)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			logger.Info("shutting down sync worker")
			worker.Stop()
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to source configuration YAML file (required)")
	cmd.Flags().StringVar(&stateDir, "state-dir", "./state", "Directory holding the outbox")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "Sync cycle interval")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single cycle and exit")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// hostedSnapshotFetcher builds the hosted-state snapshot a sync cycle
// compares against. It re-exports tickets into memory and indexes them by
// canonical ID; thread records are discarded by the sink.
func hostedSnapshotFetcher(source core.Source) syncer.HostedFetcher {
	return func(ctx context.Context) (map[string]models.HostedEntity, error) {
		sink := newSnapshotSink()
		if _, _, err := source.ExportTickets(ctx, sink); err != nil {
			return nil, err
		}
		return sink.entities, nil
	}
}

func newSandboxCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Manage sandboxed dataset clones",
	}
	cmd.PersistentFlags().StringVar(&root, "root", ".", "Directory sandboxes are created under")

	var includeRules bool
	cloneCmd := &cobra.Command{
		Use:   "clone <source-export-dir> <sandbox-id>",
		Short: "Clone an exported dataset into a sandbox with fresh identities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := sandbox.NewManager(root, logger.Get())
			manifest, err := manager.Clone(args[0], args[1], sandbox.CloneOptions{IncludeRules: includeRules})
			if err != nil {
				return err
			}
			fmt.Printf("sandbox %s: %d files, %d IDs remapped\n",
				manifest.SandboxID, len(manifest.ClonedFiles), len(manifest.IDMappings))
			return nil
		},
	}
	cloneCmd.Flags().BoolVar(&includeRules, "include-rules", false, "Copy automation rules into the sandbox")
	cmd.AddCommand(cloneCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "teardown <sandbox-id>",
		Short: "Remove a sandbox and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := sandbox.NewManager(root, logger.Get())
			return manager.Teardown(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List existing sandboxes",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := sandbox.NewManager(root, logger.Get())
			ids, err := manager.List()
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		},
	})

	return cmd
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", zap.Error(err))
	}
}

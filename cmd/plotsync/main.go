package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/config"
	"github.com/plotsync/plotsync/internal/debug"
	_ "github.com/plotsync/plotsync/internal/reader/all"
	"github.com/plotsync/plotsync/internal/storage"
	"github.com/plotsync/plotsync/internal/telemetry"
)

// Command groups
const (
	GroupProject = "project"
	GroupSync    = "sync"
	GroupTools   = "tools"
)

var (
	dbPath      string
	actor       string
	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	store storage.Gateway

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

// noDBCommands run without opening the database.
var noDBCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:   "plotsync",
	Short: "plotsync - keep a novel's outline and its project in step",
	Long: `Import an outline (tool export, heading text, project XML or a note vault)
into a structured project, then preview and apply changes as the outline evolves.
Locked items and written prose are never touched by a sync.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		if cmd.Name() == "serve" {
			loadDotEnv()
		}

		if err := config.Initialize(); err != nil {
			FatalError("%v", err)
		}
		applyFlagOverrides(cmd)
		debug.SetVerbose(verboseFlag)
		debug.SetQuiet(quietFlag)

		if err := telemetry.Init(rootCtx, "plotsync", Version); err != nil {
			WarnError("telemetry disabled: %v", err)
		}

		if noDBCommands[cmd.Name()] {
			return
		}
		s, err := openStore(rootCtx, config.GetString(config.KeyBackend), config.GetString(config.KeyDB))
		if err != nil {
			FatalErrorWithHint(fmt.Sprintf("open database: %v", err), "Pass --db or set PLOTSYNC_DB to a writable path")
		}
		store = s
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
		telemetry.Shutdown(context.Background())
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: ~/.local/share/plotsync/plotsync.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name recorded in logs (default: $PLOTSYNC_ACTOR, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddGroup(&cobra.Group{ID: GroupProject, Title: "Projects:"})
	rootCmd.AddGroup(&cobra.Group{ID: GroupSync, Title: "Sync:"})
	rootCmd.AddGroup(&cobra.Group{ID: GroupTools, Title: "Tools:"})
}

// applyFlagOverrides lets explicitly set flags win over config and env.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("db") {
		config.Set(config.KeyDB, dbPath)
	}
	if flags.Changed("actor") {
		config.Set(config.KeyActor, actor)
	}
	if flags.Changed("json") {
		config.Set(config.KeyJSON, jsonOutput)
	} else {
		jsonOutput = config.GetBool(config.KeyJSON)
	}
	actor = resolveActor()
}

func resolveActor() string {
	if a := config.GetString(config.KeyActor); a != "" {
		return a
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

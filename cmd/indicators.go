// Package cmd provides command-line interface commands for Sentinel.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sentinel/config"
	"sentinel/core"
	"sentinel/storage"
	"sentinel/threat"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for indicator commands
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
)

const (
	// Protection against memory exhaustion on oversized feed files
	maxImportFileSize = 10 * 1024 * 1024
	defaultTimeout    = 5 * time.Minute
)

// validateFilePath rejects paths that traverse outside the working directory.
func validateFilePath(filename string) error {
	decoded, err := url.QueryUnescape(filename)
	if err != nil {
		decoded = filename
	}

	if strings.Contains(decoded, "..") || strings.Contains(filename, "..") {
		return fmt.Errorf("path traversal detected: '..' not allowed in file path")
	}

	absPath, err := filepath.Abs(filepath.Clean(decoded))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	if !strings.HasPrefix(absPath, workDir) {
		return fmt.Errorf("path escapes current directory")
	}

	return nil
}

// NewIndicatorsCmd creates the root indicators command with all subcommands.
func NewIndicatorsCmd() *cobra.Command {
	indicatorsCmd := &cobra.Command{
		Use:   "indicators",
		Short: "Manage threat indicators",
		Long: `Manage threat intelligence indicators including feed imports,
list status changes, and statistics.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	indicatorsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output as JSON")
	indicatorsCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	indicatorsCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	indicatorsCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	indicatorsCmd.AddCommand(newImportCmd())
	indicatorsCmd.AddCommand(newListCmd())
	indicatorsCmd.AddCommand(newStatsCmd())
	indicatorsCmd.AddCommand(newWhitelistCmd())
	indicatorsCmd.AddCommand(newBlacklistCmd())
	indicatorsCmd.AddCommand(newFalsePositiveCmd())

	return indicatorsCmd
}

func newImportCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import indicators from a YAML feed file",
		Long: `Import threat indicators from a YAML feed file. Entries already known
from the same source keep their higher confidence; weaker duplicates are skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			filename := args[0]
			if err := validateFilePath(filename); err != nil {
				return err
			}

			info, err := os.Stat(filename)
			if err != nil {
				return fmt.Errorf("failed to stat feed file: %w", err)
			}
			if info.Size() > maxImportFileSize {
				return fmt.Errorf("feed file too large: %d bytes (max %d)", info.Size(), maxImportFileSize)
			}

			data, err := os.ReadFile(filename)
			if err != nil {
				return fmt.Errorf("failed to read feed file: %w", err)
			}

			var entries []threat.FeedEntry
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("failed to parse feed file: %w", err)
			}

			intel, cleanup, err := initIntelService()
			if err != nil {
				return err
			}
			defer cleanup()

			var spin *spinner.Spinner
			if !quiet && !outputJSON {
				spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				spin.Suffix = fmt.Sprintf(" Importing %d indicators from %s...", len(entries), source)
				spin.Start()
			}

			result, err := intel.ImportFeed(ctx, source, entries)
			if spin != nil {
				spin.Stop()
			}
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			if outputJSON {
				return outputAsJSON(result)
			}
			if !quiet {
				successColor.Printf("✓ Import complete\n")
				fmt.Printf("  Imported: %d\n  Updated:  %d\n  Skipped:  %d\n",
					result.Imported, result.Updated, result.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "manual", "Feed source name")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List active indicators",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			_, indicators, cleanup, err := initStores()
			if err != nil {
				return err
			}
			defer cleanup()

			active, err := indicators.FindActive(ctx)
			if err != nil {
				return fmt.Errorf("failed to list indicators: %w", err)
			}

			if outputJSON {
				return outputAsJSON(active)
			}

			renderIndicatorTable(active)
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show active indicator statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			intel, cleanup, err := initIntelService()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := intel.GetStatistics(ctx)
			if err != nil {
				return fmt.Errorf("failed to get statistics: %w", err)
			}

			if outputJSON {
				return outputAsJSON(stats)
			}

			headerColor.Println("Active indicators")
			fmt.Printf("  Total: %d\n", stats.Total)
			for _, sev := range core.AllSeverities {
				if n, ok := stats.BySeverity[sev]; ok && n > 0 {
					fmt.Printf("  %-8s %d\n", string(sev)+":", n)
				}
			}
			return nil
		},
	}
}

func newWhitelistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whitelist <indicator-id>",
		Short: "Whitelist an indicator",
		Long:  "Mark an indicator as a known-good exception. Whitelisted indicators never block.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListStatusChange(args[0], core.ListStatusWhitelist)
		},
	}
}

func newBlacklistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blacklist <indicator-id>",
		Short: "Blacklist an indicator",
		Long:  "Mark an indicator as confirmed-bad. Blacklisted indicators always block.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListStatusChange(args[0], core.ListStatusBlacklist)
		},
	}
}

func newFalsePositiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "false-positive <indicator-id>",
		Short: "Record a false positive and deactivate the indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			intel, cleanup, err := initIntelService()
			if err != nil {
				return err
			}
			defer cleanup()

			ind, err := intel.MarkFalsePositive(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to mark false positive: %w", err)
			}

			if outputJSON {
				return outputAsJSON(ind)
			}
			if !quiet {
				successColor.Printf("✓ Indicator %s marked as false positive (confidence now %.0f)\n",
					ind.ID, ind.Confidence)
			}
			return nil
		},
	}
}

func runListStatusChange(id string, status core.ListStatus) error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	intel, cleanup, err := initIntelService()
	if err != nil {
		return err
	}
	defer cleanup()

	var ind *core.ThreatIndicator
	switch status {
	case core.ListStatusWhitelist:
		ind, err = intel.Whitelist(ctx, id)
	case core.ListStatusBlacklist:
		ind, err = intel.Blacklist(ctx, id)
	default:
		return fmt.Errorf("unsupported list status: %s", status)
	}
	if err != nil {
		return fmt.Errorf("failed to update indicator: %w", err)
	}

	if outputJSON {
		return outputAsJSON(ind)
	}
	if !quiet {
		successColor.Printf("✓ Indicator %s is now %s\n", ind.ID, ind.ListStatus)
	}
	return nil
}

// initStores opens the configured SQLite database and returns the stores
// plus a cleanup function.
func initStores() (*storage.SQLite, storage.IndicatorStore, func(), error) {
	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = config.LoadConfigFile(configFile)
	} else {
		cfg, err = config.LoadConfig()
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	sugar := logger.Sugar()

	sqlite, err := storage.NewSQLite(cfg.Database.Path, sugar)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	cleanup := func() {
		if err := sqlite.Close(); err != nil {
			sugar.Warnf("Failed to close SQLite connection during cleanup: %v", err)
		}
		_ = logger.Sync()
	}

	return sqlite, storage.NewSQLiteIndicatorStore(sqlite, sugar), cleanup, nil
}

func initIntelService() (*threat.IntelService, func(), error) {
	_, indicators, cleanup, err := initStores()
	if err != nil {
		return nil, nil, err
	}

	cache, err := threat.NewLRUIndicatorCache(128, time.Minute)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	sugar := zap.NewNop().Sugar()
	intel := threat.NewIntelService(indicators, cache, nil, sugar)
	return intel, cleanup, nil
}

func outputAsJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func renderIndicatorTable(indicators []*core.ThreatIndicator) {
	if len(indicators) == 0 {
		warningColor.Println("No active indicators")
		return
	}

	headerColor.Printf("%-36s  %-10s  %-30s  %-8s  %-6s  %-6s  %s\n",
		"ID", "TYPE", "VALUE", "SEV", "CONF", "SCORE", "SOURCE")
	for _, ind := range indicators {
		value := ind.Value
		if len(value) > 30 {
			value = value[:27] + "..."
		}
		fmt.Printf("%-36s  %-10s  %-30s  %-8s  %-6.0f  %-6.1f  %s\n",
			ind.ID, ind.Type, value, ind.Severity, ind.Confidence, threat.Score(ind), ind.Source)
	}
	fmt.Printf("\n%d indicators\n", len(indicators))
}

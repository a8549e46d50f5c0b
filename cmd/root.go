package cmd

import (
	"fmt"
	"os"

	cfgpkg "github.com/KaramelBytes/dropsight/internal/config"
	"github.com/KaramelBytes/dropsight/internal/logging"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	// Global flags
	cfgFile   string
	debug     bool
	logLevel  string
	logFormat string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:           "dropsight",
	Short:         "Drop a spreadsheet, get its most interesting pattern",
	Long:          `dropsight reads a CSV or Excel file, decodes its first sheet and reports the highest-ranked insight it finds (outliers, correlations, trends, dominant categories). Use it from the terminal or serve a local drop page.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.dropsight/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = cfgpkg.Defaults()
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") && logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if f.Changed("log-format") && logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
}

// currentConfig returns the loaded configuration, loading it on first use.
func currentConfig() *cfgpkg.Global {
	if cfg == nil {
		loadConfig()
	}
	return cfg
}

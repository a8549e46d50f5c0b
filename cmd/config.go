package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/dropsight/internal/config"
	"github.com/KaramelBytes/dropsight/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set dropsight configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "max_upload_bytes: %d (%s)\n", c.MaxUploadBytes, utils.FormatBytes(c.MaxUploadBytes))
		fmt.Fprintf(out, "listen_addr: %s\n", c.ListenAddr)
		fmt.Fprintf(out, "open_browser: %t\n", c.OpenBrowser)
		fmt.Fprintf(out, "overlap_policy: %s\n", c.OverlapPolicy)
		fmt.Fprintf(out, "log_level: %s\n", c.LogLevel)
		fmt.Fprintf(out, "log_format: %s\n", c.LogFormat)
		fmt.Fprintf(out, "max_rows: %d\n", c.MaxRows)
		fmt.Fprintf(out, "outlier_threshold: %.3f\n", c.OutlierThreshold)
		fmt.Fprintf(out, "min_correlation: %.3f\n", c.MinCorrelation)
		fmt.Fprintf(out, "min_trend_r2: %.3f\n", c.MinTrendR2)
		fmt.Fprintf(out, "min_majority_share: %.3f\n", c.MinMajorityShare)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c := currentConfig()
		if err := setConfigValue(c, key, val); err != nil {
			return err
		}
		if err := c.Validate(); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Saved config")
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	parseFloat := func() (float64, error) {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("invalid float for %s: %v", key, val)
		}
		return f, nil
	}
	var err error
	switch key {
	case "max_upload_bytes":
		n, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil || n <= 0 {
			return fmt.Errorf("invalid size for max_upload_bytes: %v", val)
		}
		c.MaxUploadBytes = n
	case "listen_addr":
		c.ListenAddr = val
	case "open_browser":
		b, perr := strconv.ParseBool(val)
		if perr != nil {
			return fmt.Errorf("invalid bool for open_browser: %v", val)
		}
		c.OpenBrowser = b
	case "overlap_policy":
		switch strings.ToLower(val) {
		case cfgpkg.OverlapIgnore, cfgpkg.OverlapRestart:
			c.OverlapPolicy = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid overlap_policy: %s (use ignore or restart)", val)
		}
	case "log_level":
		c.LogLevel = val
	case "log_format":
		c.LogFormat = val
	case "max_rows":
		i, perr := strconv.Atoi(val)
		if perr != nil || i < 0 {
			return fmt.Errorf("invalid int for max_rows: %v", val)
		}
		c.MaxRows = i
	case "outlier_threshold":
		c.OutlierThreshold, err = parseFloat()
	case "min_correlation":
		c.MinCorrelation, err = parseFloat()
	case "min_trend_r2":
		c.MinTrendR2, err = parseFloat()
	case "min_majority_share":
		c.MinMajorityShare, err = parseFloat()
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

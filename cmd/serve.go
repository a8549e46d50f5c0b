package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/dropsight/internal/analysis"
	"github.com/KaramelBytes/dropsight/internal/server"
	"github.com/KaramelBytes/dropsight/internal/utils"
	"github.com/spf13/cobra"
)

var (
	srvAddr    string
	srvOpen    bool
	srvOverlap string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local drop page and its state API",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := currentConfig()
		addr := c.ListenAddr
		if cmd.Flags().Changed("addr") && srvAddr != "" {
			addr = srvAddr
		}
		overlap := c.OverlapPolicy
		if cmd.Flags().Changed("overlap") {
			overlap = srvOverlap
		}
		open := c.OpenBrowser
		if cmd.Flags().Changed("open") {
			open = srvOpen
		}

		ctrl, err := newController(c, analysis.NewStatsExtractor(extractorOptions(c)), c.MaxUploadBytes, overlap)
		if err != nil {
			return err
		}
		srv, err := server.New(server.Options{Controller: ctrl, Version: Version, Logger: slog.Default()})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return srv.ListenAndServe(ctx, addr, func(url string) {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ dropsight %s listening on %s (max upload %s)\n", Version, url, utils.FormatBytes(ctrl.MaxSizeBytes()))
			if open {
				if err := utils.OpenBrowser(url); err != nil {
					slog.Warn("could not open browser", "url", url, "error", err)
				}
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "", "listen address (default from config, 127.0.0.1:8537)")
	serveCmd.Flags().BoolVar(&srvOpen, "open", false, "open the drop page in the default browser")
	serveCmd.Flags().StringVar(&srvOverlap, "overlap", "ignore", "file dropped while loading: ignore|restart")
}

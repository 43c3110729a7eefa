package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/packetcore/internal/config"
	"firestige.xyz/packetcore/internal/log"
	"firestige.xyz/packetcore/internal/metrics"
	"firestige.xyz/packetcore/pkg/pipeline"
)

var (
	captureSnaplen int32
	capturePromisc bool
)

var captureCmd = &cobra.Command{
	Use:   "capture <interface>",
	Short: "Capture live traffic and run it through the analyzer chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCapture(args[0])
	},
}

func init() {
	captureCmd.Flags().Int32Var(&captureSnaplen, "snaplen", 65535, "capture snapshot length")
	captureCmd.Flags().BoolVar(&capturePromisc, "promisc", false, "enable promiscuous mode")
}

func runCapture(iface string) error {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		exitWithError("failed to load config", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		exitWithError("failed to init logging", err)
	}

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
		defer srv.Stop(context.Background())
	}

	d := newDriver(cfg)
	src := pipeline.NewLiveSource(iface, captureSnaplen, capturePromisc, time.Second)

	done := make(chan error, 1)
	go func() { done <- pipeline.Run(d, src) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-done:
		if err != nil {
			exitWithError("capture failed", err)
		}
	case <-sigCh:
		d.Shutdown()
	}

	stats := d.Stats()
	fmt.Printf("received=%d decoded=%d dropped=%d\n", stats.Received, stats.Decoded, stats.Dropped)
	return nil
}

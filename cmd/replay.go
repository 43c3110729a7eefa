package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/packetcore/internal/config"
	"firestige.xyz/packetcore/internal/log"
	"firestige.xyz/packetcore/pkg/analyzer/tunnel"
	"firestige.xyz/packetcore/pkg/packet"
	"firestige.xyz/packetcore/pkg/pipeline"
	"firestige.xyz/packetcore/pkg/sessions"
)

var replayCmd = &cobra.Command{
	Use:   "replay <pcap-file>",
	Short: "Replay a pcap file through the analyzer chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(args[0])
	},
}

func runReplay(path string) error {
	cfg, err := config.LoadOrDefault(configFile)
	if err != nil {
		exitWithError("failed to load config", err)
	}
	if err := log.Init(cfg.Log); err != nil {
		exitWithError("failed to init logging", err)
	}

	d := newDriver(cfg)
	src := pipeline.NewFileSource(path)

	start := time.Now()
	if err := pipeline.Run(d, src); err != nil {
		exitWithError("replay failed", err)
	}
	elapsed := time.Since(start)

	stats := d.Stats()
	fmt.Printf("received=%d decoded=%d dropped=%d elapsed=%s\n",
		stats.Received, stats.Decoded, stats.Dropped, elapsed)
	return nil
}

func newDriver(cfg *config.GlobalConfig) *pipeline.Driver {
	pcfg := pipeline.Config{
		Tunnel: tunnelConfigFrom(cfg),
	}
	if d, err := time.ParseDuration(cfg.Engine.IPReassembly.Timeout); err == nil {
		pcfg.FragTimeout = d
	} else {
		pcfg.FragTimeout = 30 * time.Second
	}
	pcfg.MaxFragments = cfg.Engine.IPReassembly.MaxFragmentsPerDatagram
	pcfg.MaxReassembleSize = cfg.Engine.IPReassembly.MaxReassembleSize

	if cfg.Trace.Enabled {
		f, err := os.Create(cfg.Trace.Path)
		if err != nil {
			exitWithError("failed to open trace file", err)
		}
		dw, err := pipeline.NewDumpWriter(f, packet.LinkEthernet)
		if err != nil {
			exitWithError("failed to init trace dump", err)
		}
		pcfg.Dump = dw
	}

	return pipeline.New(pcfg, sessions.NewConsoleDispatcher())
}

func tunnelConfigFrom(cfg *config.GlobalConfig) tunnel.Config {
	tc := tunnel.Config{
		EnableGRE:    cfg.Engine.Tunnel.GRE,
		EnableIP:     cfg.Engine.Tunnel.IPIP,
		EnableVXLAN:  cfg.Engine.Tunnel.VXLAN,
		EnableGeneve: cfg.Engine.Tunnel.Geneve,
		MaxDepth:     cfg.Engine.Tunnel.MaxDepth,
	}
	if d, err := time.ParseDuration(cfg.Engine.Tunnel.IPTunnelTimeout); err == nil {
		tc.IPTunnelTimeout = d
	}
	return tc
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/packetcore/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file given by --config",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func runValidate() error {
	if configFile == "" {
		exitWithError("validate requires --config", nil)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Println("INVALID:", err)
		exitWithError("config invalid", nil)
	}
	fmt.Printf("VALID: log=%s/%s tunnel(gre=%v ipip=%v vxlan=%v geneve=%v max_depth=%d) metrics=%s\n",
		cfg.Log.Level, cfg.Log.Format,
		cfg.Engine.Tunnel.GRE, cfg.Engine.Tunnel.IPIP, cfg.Engine.Tunnel.VXLAN, cfg.Engine.Tunnel.Geneve,
		cfg.Engine.Tunnel.MaxDepth, cfg.Metrics.Listen)
	return nil
}

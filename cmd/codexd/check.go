package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/codexd/internal/agent/codex"
	"github.com/HyphaGroup/codexd/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the codex binary resolves and report its version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if path != "" {
			fmt.Printf("Config:  %s\n", path)
		}

		binary := config.NewRuntime(cfg.Codex).Snapshot().Binary
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		v, err := codex.Version(ctx, binary)
		if err != nil {
			return err
		}
		fmt.Printf("Binary:  %s\n", binary)
		fmt.Printf("Version: %s\n", v)
		return nil
	},
}

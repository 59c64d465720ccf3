// codexd - MCP server exposing local Codex CLI conversations, approvals and
// terminals to remote clients.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/HyphaGroup/codexd/internal/config"
)

// Version is set at build time via -ldflags
var Version = "dev"

var configDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "codexd",
	Short: "Codex conversation server",
	Long: `codexd - run Codex CLI conversations and shell sessions behind an MCP endpoint.

Configuration is read from codexd.jsonc, looked up in:
  --config-dir, ./config, ~/.codexd`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "",
		"Directory holding codexd.jsonc (default: ./config, then ~/.codexd)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("codexd %s\n", Version)
	},
}

// loadConfig reads codexd.jsonc. A missing file is only an error when
// --config-dir names a directory explicitly.
func loadConfig() (*config.Config, string, error) {
	path, err := config.FindConfigPath(configDir)
	if err != nil {
		if configDir != "" {
			return nil, "", err
		}
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Package cmd provides the CLI commands for Aptgate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Apt-Gate/Aptgate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "aptgate",
	Short: "Aptgate - Debian archive mirror proxy",
	Long: `Aptgate is a caching reverse proxy in front of a Debian archive mirror.

It enforces an archive-path allowlist, a geo-IP policy engine, and
signature/hash verification on everything it serves, and caches upstream
responses by artifact class.

Quick start:
  1. Create a config file: aptgate.yaml
  2. Run: aptgate start

Configuration:
  Config is loaded from aptgate.yaml in the current directory,
  $HOME/.aptgate/, or /etc/aptgate/.

  Environment variables can override config values with the APTGATE_ prefix.
  Example: APTGATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the proxy server
  stop        Stop the running server
  keys        List keys loaded from the signature keyring
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./aptgate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}

package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/imageforge/internal/config"
	"github.com/sigreer/imageforge/internal/ledger"
	"github.com/sigreer/imageforge/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "imageforge",
	Short: "Disk image provisioning and SBOM inspection tool",
	Long: `imageforge builds disposable virtual disk images populated from
container root filesystems, and mounts arbitrary pre-built disk images
read-only to generate SBOMs from their contents. Both pipelines require
root and exclusive use of the host's loop/NBD devices.`,
	Version: version.Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/imageforge/config.yaml)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(inspectCmd)
}

// requireRoot enforces the privileged-process contract before any
// device is touched
func requireRoot() {
	if os.Geteuid() != 0 {
		fmt.Fprintln(os.Stderr, "This command must be run as root")
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openLedger opens the run-history database when enabled. Failure is
// downgraded to a warning: the ledger is observability, not a
// requirement.
func openLedger(cfg *config.Config) *ledger.Ledger {
	if !cfg.Ledger.Enabled {
		return nil
	}
	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		logrus.Warnf("Run ledger unavailable: %v", err)
		return nil
	}
	return led
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

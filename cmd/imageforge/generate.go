package main

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/imageforge/internal/logging"
	"github.com/sigreer/imageforge/internal/pipeline"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one distributable disk image per supported filesystem",
	Long: `Iterates the fixed filesystem catalog and produces one qcow2 image
artifact per filesystem type into the output directory, populated from
each type's base container image. Entries whose artifact already exists
are skipped. The exit status is non-zero if any entry failed.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		requireRoot()
		cfg := loadConfig()

		logFile, err := logging.Setup(filepath.Join(cfg.OutputDir, "image_generator.log"))
		if err != nil {
			logrus.Fatalf("Failed to set up logging: %v", err)
		}
		defer logFile.Close()

		led := openLedger(cfg)
		defer led.Close()

		if err := pipeline.NewProvisioner(cfg, led).Run(); err != nil {
			logrus.Errorf("Error: %v", err)
			logFile.Close()
			led.Close()
			os.Exit(1)
		}
	},
}

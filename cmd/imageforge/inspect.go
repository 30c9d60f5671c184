package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sigreer/imageforge/internal/image"
	"github.com/sigreer/imageforge/internal/logging"
	"github.com/sigreer/imageforge/internal/pipeline"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <image>",
	Short: "Mount a disk image read-only and generate an SBOM",
	Long: `Attaches the given disk image (raw, qcow2, vmdk, vhd, or gzipped raw)
to the NBD device, selects its most root-like partition, mounts it
read-only, and runs the SBOM scanner over the mounted tree. The SBOM
artifact and a per-run log file are written to the current directory.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		requireRoot()
		imagePath := args[0]
		if _, err := os.Stat(imagePath); err != nil {
			fmt.Fprintf(os.Stderr, "Image not found: %s\n", imagePath)
			os.Exit(1)
		}
		cfg := loadConfig()

		logName := fmt.Sprintf("%s_%s.log", time.Now().Format("20060102_150405"), image.Stem(imagePath))
		logFile, err := logging.Setup(logName)
		if err != nil {
			logrus.Fatalf("Failed to set up logging: %v", err)
		}
		defer logFile.Close()

		led := openLedger(cfg)
		defer led.Close()

		if err := pipeline.NewInspector(cfg, led).Run(imagePath); err != nil {
			logrus.Errorf("Error: %v", err)
			logFile.Close()
			led.Close()
			os.Exit(1)
		}
	},
}

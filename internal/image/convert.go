package image

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/cmdutil"
)

// Prepared is an image in a directly attachable form. Converted and
// decompressed working copies live in TempDir; originals are left
// untouched.
type Prepared struct {
	Path    string
	TempDir string
}

// Cleanup removes any working copies
func (p *Prepared) Cleanup() error {
	if p.TempDir == "" {
		return nil
	}
	logrus.Infof("Removing temporary directory: %s", p.TempDir)
	return os.RemoveAll(p.TempDir)
}

// Prepare makes an image attachable: gzipped images are decompressed to
// raw, vmdk/vhd/vpc are converted to qcow2, everything else passes
// through untouched.
func Prepare(imagePath string) (*Prepared, error) {
	tempDir, err := os.MkdirTemp("", "sbomvm_")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	p := &Prepared{Path: imagePath, TempDir: tempDir}

	switch format := Detect(imagePath); format {
	case Gzip:
		logrus.Info("Decompressing gzipped image")
		out := filepath.Join(tempDir, Stem(imagePath)+".raw")
		f, err := os.Create(out)
		if err != nil {
			p.Cleanup()
			return nil, fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := cmdutil.RunTo(f, "gunzip", "-c", imagePath); err != nil {
			f.Close()
			p.Cleanup()
			return nil, err
		}
		f.Close()
		p.Path = out

	case VMDK, VHD, VPC:
		logrus.Infof("Converting %s to qcow2", format)
		out := filepath.Join(tempDir, Stem(imagePath)+".qcow2")
		if _, err := cmdutil.Run("qemu-img", "convert",
			"-f", string(format), "-O", "qcow2", imagePath, out); err != nil {
			p.Cleanup()
			return nil, err
		}
		p.Path = out
	}

	return p, nil
}

// ConvertToQCow2 converts a raw image into a qcow2 artifact at
// destPath, replacing any stale artifact already there.
func ConvertToQCow2(rawPath, destPath string) error {
	logrus.Infof("Converting %s to qcow2 format", rawPath)

	if _, err := os.Stat(destPath); err == nil {
		logrus.Warnf("Removing existing qcow2 image: %s", destPath)
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", destPath, err)
		}
	}

	if _, err := cmdutil.Run("qemu-img", "convert",
		"-f", "raw", "-O", "qcow2", rawPath, destPath); err != nil {
		return err
	}
	if _, err := os.Stat(destPath); err != nil {
		return fmt.Errorf("failed to create qcow2 image %s: %w", destPath, err)
	}
	return nil
}

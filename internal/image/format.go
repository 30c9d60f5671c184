package image

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sigreer/imageforge/internal/cmdutil"
)

// Format is a disk image encoding
type Format string

const (
	Raw   Format = "raw"
	QCow2 Format = "qcow2"
	VMDK  Format = "vmdk"
	VHD   Format = "vhd"
	VPC   Format = "vpc"
	Gzip  Format = "gzip"
)

// Detect probes the image format: gzip magic first (the format probe
// reports compressed raw images as raw), then the probe tool's
// "file format:" line, then the file extension. Unknowns default to
// raw.
func Detect(path string) Format {
	logrus.Infof("Detecting format of %s", path)

	if isGzipped(path) {
		return Gzip
	}

	out, err := cmdutil.Output("qemu-img", "info", path)
	if err != nil {
		logrus.Warnf("qemu-img info failed: %v", err)
	} else {
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(line, "file format:") {
				detected := strings.TrimSpace(strings.TrimPrefix(line, "file format:"))
				logrus.Infof("qemu-img detected format: %s", detected)
				return Format(detected)
			}
		}
	}

	if strings.ToLower(filepath.Ext(path)) == ".vmdk" {
		return VMDK
	}
	return Raw
}

// isGzipped sniffs the two-byte gzip magic
func isGzipped(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	magic := make([]byte, 2)
	if _, err := f.Read(magic); err != nil {
		return false
	}
	return magic[0] == 0x1f && magic[1] == 0x8b
}

// Stem returns the filename without directory or extension, used for
// log and artifact naming.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

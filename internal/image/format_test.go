package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	assert.Equal(t, "disk", Stem("/tmp/images/disk.qcow2"))
	assert.Equal(t, "ubuntu_22.04_zfs", Stem("ubuntu_22.04_zfs.qcow2"))
	assert.Equal(t, "plain", Stem("plain"))
}

func TestIsGzipped(t *testing.T) {
	dir := t.TempDir()

	gz := filepath.Join(dir, "image.ami")
	require.NoError(t, os.WriteFile(gz, []byte{0x1f, 0x8b, 0x08, 0x00}, 0o644))
	assert.True(t, isGzipped(gz))

	raw := filepath.Join(dir, "image.raw")
	require.NoError(t, os.WriteFile(raw, []byte{0x00, 0x00, 0x00, 0x00}, 0o644))
	assert.False(t, isGzipped(raw))

	assert.False(t, isGzipped(filepath.Join(dir, "missing.raw")))
}

func TestDetectGzipBeforeProbe(t *testing.T) {
	// The probe tool reports compressed raw images as raw, so the
	// magic check must win
	gz := filepath.Join(t.TempDir(), "image.raw")
	require.NoError(t, os.WriteFile(gz, []byte{0x1f, 0x8b, 0x08, 0x00}, 0o644))
	assert.Equal(t, Gzip, Detect(gz))
}

package cmdutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAllPresent(t *testing.T) {
	assert.NoError(t, Verify(map[string]string{"sh": "dash"}))
}

func TestVerifyReportsMissingWithPackageHint(t *testing.T) {
	err := Verify(map[string]string{
		"sh":                         "dash",
		"definitely-not-a-real-tool": "imaginary-package",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "definitely-not-a-real-tool")
	assert.Contains(t, err.Error(), "imaginary-package")
	assert.NotContains(t, err.Error(), "dash")
}

func TestRunCapturesOutput(t *testing.T) {
	out, err := Run("sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", strings.TrimSpace(out))
}

func TestRunFoldsOutputIntoError(t *testing.T) {
	_, err := Run("sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOutputSeparatesStderr(t *testing.T) {
	out, err := Output("sh", "-c", "echo stdout; echo noise >&2")
	require.NoError(t, err)
	assert.Equal(t, "stdout", strings.TrimSpace(out))
}

func TestRunToStreams(t *testing.T) {
	var buf strings.Builder
	require.NoError(t, RunTo(&buf, "sh", "-c", "printf binary-stream"))
	assert.Equal(t, "binary-stream", buf.String())
}

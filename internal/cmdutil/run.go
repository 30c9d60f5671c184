package cmdutil

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Run executes a command, logging the command line and its output at
// debug level. On failure the trimmed combined output is folded into
// the returned error.
func Run(name string, args ...string) (string, error) {
	logrus.Debugf("Running command: %s %s", name, strings.Join(args, " "))

	out, err := exec.Command(name, args...).CombinedOutput()
	text := string(out)
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		logrus.Debugf("Command output: %s", trimmed)
	}
	if err != nil {
		return text, fmt.Errorf("%s failed: %s: %w", name, strings.TrimSpace(text), err)
	}
	return text, nil
}

// Output executes a command and returns stdout only. Stderr is captured
// into the error on failure.
func Output(name string, args ...string) (string, error) {
	logrus.Debugf("Running command: %s %s", name, strings.Join(args, " "))

	var stderr strings.Builder
	cmd := exec.Command(name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("%s failed: %s: %w", name, strings.TrimSpace(stderr.String()), err)
	}
	return string(out), nil
}

// RunTo executes a command with stdout streamed to w, for binary output
// that must not pass through a string (container filesystem exports).
func RunTo(w io.Writer, name string, args ...string) error {
	logrus.Debugf("Running command (streamed): %s %s", name, strings.Join(args, " "))

	var stderr strings.Builder
	cmd := exec.Command(name, args...)
	cmd.Stdout = w
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %s: %w", name, strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

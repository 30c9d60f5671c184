package cmdutil

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Verify checks that every command in the map (command name -> providing
// package) resolves on PATH. Missing commands are reported together with
// their package hints so the operator can fix the host in one pass.
func Verify(required map[string]string) error {
	var missing []string
	for cmd, pkg := range required {
		if _, err := exec.LookPath(cmd); err != nil {
			missing = append(missing, fmt.Sprintf("  - %s (from package %s)", cmd, pkg))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("required commands not found, please install:\n%s", strings.Join(missing, "\n"))
}

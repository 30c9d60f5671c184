package partition

import (
	"strconv"
	"strings"
)

// ParseSizeMB normalizes a partition-table size string ("500MB",
// "1.2GB", "512KB") to megabytes for comparison. Units use 1024
// multipliers so "1024MB" and "1GB" compare equal. Malformed input
// yields 0 rather than an error: a partition with an unreadable size
// loses ties but is never a reason to fail the scan.
func ParseSizeMB(s string) float64 {
	s = strings.ToUpper(strings.TrimSpace(s))

	unit := 1.0
	switch {
	case strings.HasSuffix(s, "GB"):
		unit = 1024
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		unit = 1.0 / 1024
		s = strings.TrimSuffix(s, "KB")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v * unit
}

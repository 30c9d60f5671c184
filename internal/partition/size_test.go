package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSizeMB(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"500MB", 500},
		{"1GB", 1024},
		{"1.2GB", 1228.8},
		{"512KB", 0.5},
		{"  2gb ", 2048},
		{"1074", 1074},
		{"", 0},
		{"garbage", 0},
		{"MB", 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ParseSizeMB(tt.in), 0.0001, "input %q", tt.in)
	}
}

func TestParseSizeMBBinaryEquality(t *testing.T) {
	// Units carry 1024 multipliers, so these describe the same extent
	assert.Equal(t, ParseSizeMB("1GB"), ParseSizeMB("1024MB"))
	assert.Equal(t, ParseSizeMB("1MB"), ParseSizeMB("1024KB"))
}

func TestParseSizeMBOrdering(t *testing.T) {
	pairs := [][2]string{
		{"500MB", "1.2GB"},
		{"900MB", "1GB"},
		{"512KB", "1MB"},
		{"10.7GB", "11GB"},
	}
	for _, p := range pairs {
		assert.Less(t, ParseSizeMB(p[0]), ParseSizeMB(p[1]), "%q should be smaller than %q", p[0], p[1])
	}
}

package offgate

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kib = int64(1) << 10
	mib = int64(1) << 20
	gib = int64(1) << 30
)

// parseBytes reads quota sizes like "256mb", "1.5g", "4096". An optional
// trailing "b" is tolerated after the unit letter.
func parseBytes(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.TrimSuffix(s, "b")
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k':
		mult, s = kib, s[:len(s)-1]
	case 'm':
		mult, s = mib, s[:len(s)-1]
	case 'g':
		mult, s = gib, s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative size")
	}
	return int64(v * float64(mult)), nil
}

// formatBytes renders a size for quota logs, one decimal place, no
// trailing ".0".
func formatBytes(b uint64) string {
	switch {
	case b < uint64(kib):
		return fmt.Sprintf("%db", b)
	case b < uint64(mib):
		return trimmed(float64(b)/float64(kib)) + "kb"
	case b < uint64(gib):
		return trimmed(float64(b)/float64(mib)) + "mb"
	default:
		return trimmed(float64(b)/float64(gib)) + "gb"
	}
}

func trimmed(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}

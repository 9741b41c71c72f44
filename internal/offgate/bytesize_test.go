package offgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"512b", 512},
		{"4k", 4096},
		{"4kb", 4096},
		{"64mb", 64 << 20},
		{"1.5m", 1<<20 + 512<<10},
		{"2g", 2 << 30},
		{" 256MB ", 256 << 20},
	}
	for _, tt := range tests {
		got, err := parseBytes(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseBytesErrors(t *testing.T) {
	for _, in := range []string{"", "plenty", "-1k", "b"} {
		_, err := parseBytes(in)
		assert.Error(t, err, in)
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512b", formatBytes(512))
	assert.Equal(t, "4kb", formatBytes(4096))
	assert.Equal(t, "1.5mb", formatBytes(1<<20+512<<10))
	assert.Equal(t, "2gb", formatBytes(2<<30))
}

package ctxmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatByteCount(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 Bytes"},
		{1, "1.00 Bytes"},
		{1023, "1023.00 Bytes"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{1073741824, "1.00 GB"},
		{2 * 1024 * 1024 * 1024 * 1024, "2048.00 GB"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatByteCount(tt.bytes), "bytes=%d", tt.bytes)
	}
}

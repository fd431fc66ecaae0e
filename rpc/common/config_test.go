package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMatrixConfig(t *testing.T) {
	tests := []struct {
		in   string
		want MatrixConfig
	}{
		{"1=mem", MatrixConfig{ID: 1, Codec: "none"}},
		{"2=/data/a.smx", MatrixConfig{ID: 2, Path: "/data/a.smx", Codec: "none"}},
		{"3=/data/b.smx,cache=1000,codec=zstd", MatrixConfig{ID: 3, Path: "/data/b.smx", CacheSize: 1000, Codec: "zstd"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMatrixConfig(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			// String produces the same definition again
			again, err := ParseMatrixConfig(got.String())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseMatrixConfigErrors(t *testing.T) {
	for _, in := range []string{
		"",
		"/data/a.smx",
		"x=/data/a.smx",
		"1=/data/a.smx,cache",
		"1=/data/a.smx,cache=many",
		"1=/data/a.smx,color=blue",
	} {
		_, err := ParseMatrixConfig(in)
		assert.Error(t, err, in)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "ERROR"} {
		_, err := ParseLogLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestConfigString(t *testing.T) {
	s := &ServerConfig{
		Matrices: []MatrixConfig{
			{ID: 1},
			{ID: 2, Path: "/data/a.smx", CacheSize: 25_000, Codec: "lz4"},
		},
		Transport: ServerTransportConfig{Endpoint: ":8080", BufferSize: 512 * 1024},
		LogLevel:  "info",
	}
	out := s.String()
	assert.Contains(t, out, ":8080")
	assert.Contains(t, out, "512 KiB")
	assert.Contains(t, out, "/data/a.smx (cache 25,000 rows, codec lz4)")
	assert.Contains(t, out, "memory")
}

package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	t.Run("plain path", func(t *testing.T) {
		got, err := ExpandPath("/absolute/path")
		require.NoError(t, err)
		assert.Equal(t, "/absolute/path", got)
	})

	t.Run("tilde", func(t *testing.T) {
		got, err := ExpandPath("~/cache")
		require.NoError(t, err)
		home, _ := os.UserHomeDir()
		assert.Equal(t, filepath.Join(home, "cache"), got)
	})

	t.Run("environment variable", func(t *testing.T) {
		t.Setenv("TS_TEST_DIR", "/data")
		got, err := ExpandPath("$TS_TEST_DIR/cache")
		require.NoError(t, err)
		assert.Equal(t, "/data/cache", got)
	})
}

func TestPathWithin(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   bool
	}{
		{"", "anything/goes", true},
		{"dir", "dir", true},
		{"dir", "dir/file.txt", true},
		{"dir", "dir/", true},
		{"dir", "dirx", false},
		{"dir", "di", false},
		{"dir/sub", "dir/sub/deep/f", true},
		{"dir/sub", "dir/other", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PathWithin(tt.prefix, tt.path),
			"PathWithin(%q, %q)", tt.prefix, tt.path)
	}
}

func TestUnderAny(t *testing.T) {
	assert.True(t, UnderAny("a/b", nil))
	assert.True(t, UnderAny("a/b", []string{"c", "a"}))
	assert.False(t, UnderAny("a/b", []string{"c", "d"}))
}

func TestNormalizeScope(t *testing.T) {
	got := NormalizeScope([]string{"./dir/", "dir", "b//", ".", "", "a/x "})
	assert.Equal(t, []string{"a/x", "b", "dir"}, got)
}

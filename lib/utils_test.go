package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSliceContainsUint(t *testing.T) {
	ids := []uint{3, 7, 9}
	assert.True(t, SliceContainsUint(ids, 7))
	assert.False(t, SliceContainsUint(ids, 5))
	assert.False(t, SliceContainsUint(nil, 1))
}

func TestGetUniqueItems(t *testing.T) {
	items := []string{"google_search", "bing_search", "google_search", "duckduckgo", "bing_search"}
	assert.Equal(t, []string{"google_search", "bing_search", "duckduckgo"}, GetUniqueItems(items))
	assert.Empty(t, GetUniqueItems(nil))
}

func TestReadFileByLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxies.txt")
	content := "http://proxy1:8080\n\n# comment\n  http://proxy2:8080  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	lines, err := ReadFileByLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://proxy1:8080", "http://proxy2:8080"}, lines)

	_, err = ReadFileByLines(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Value string `json:"value"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "doc.json")

	require.NoError(t, WriteJSON(path, doc{Value: "hello"}))

	var got doc
	present, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "hello", got.Value)
}

func TestReadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	var got doc
	present, err := ReadJSON(filepath.Join(dir, "missing.json"), &got)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestWriteLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, WriteJSON(path, doc{Value: "x"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".tmp_"), "temp file leaked: %s", e.Name())
	}
}

func TestWriteTwiceSamePayloadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, WriteJSON(path, doc{Value: "stable"}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, WriteJSON(path, doc{Value: "stable"}))
	after, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestWriteOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, WriteJSON(path, doc{Value: "first"}))
	require.NoError(t, WriteJSON(path, doc{Value: "second"}))

	var got doc
	present, err := ReadJSON(path, &got)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "second", got.Value)
}

package repo

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMigrator_NeedsMigration_DetectsLegacyIndex(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	assert.False(t, m.NeedsMigration())

	m.ClearCache()
	writeFile(t, scanner.Paths.MeshIndexPath("gizmo"), `{"commits":[]}`)
	assert.True(t, m.NeedsMigration())
}

func TestMigrator_NeedsMigration_IsCached(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	assert.False(t, m.NeedsMigration())

	writeFile(t, scanner.Paths.MeshIndexPath("gizmo"), `{"commits":[]}`)
	// Still false: cached from the first call.
	assert.False(t, m.NeedsMigration())

	m.ClearCache()
	assert.True(t, m.NeedsMigration())
}

func TestMigrator_MigrateCommitIndexes_PartitionsByBranch(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	require.NoError(t, os.MkdirAll(scanner.Paths.BranchDir("gizmo", "main"), 0o755))
	require.NoError(t, os.MkdirAll(scanner.Paths.BranchDir("gizmo", "feature"), 0o755))

	legacy := `{
		"commits": [
			{"id": "c1", "branch": "main"},
			{"id": "c2", "branch": "feature"},
			{"id": "c3", "branch": "main"}
		],
		"last_updated": "2024-01-01T00:00:00Z"
	}`
	writeFile(t, scanner.Paths.MeshIndexPath("gizmo"), legacy)

	require.NoError(t, m.MigrateCommitIndexes())

	mainData, err := os.ReadFile(scanner.Paths.BranchIndexPath("gizmo", "main"))
	require.NoError(t, err)
	var mainIdx branchIndex
	require.NoError(t, json.Unmarshal(mainData, &mainIdx))
	assert.Len(t, mainIdx.Commits, 2)
	assert.Equal(t, "mesh_level", mainIdx.MigratedFrom)

	featureData, err := os.ReadFile(scanner.Paths.BranchIndexPath("gizmo", "feature"))
	require.NoError(t, err)
	var featureIdx branchIndex
	require.NoError(t, json.Unmarshal(featureData, &featureIdx))
	assert.Len(t, featureIdx.Commits, 1)

	_, err = os.Stat(scanner.Paths.MeshIndexPath("gizmo"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(scanner.Paths.MeshIndexPath("gizmo") + ".backup")
	assert.NoError(t, err)

	assert.False(t, m.NeedsMigration())
}

func TestMigrator_MigrateCommitIndexes_SkipsMissingBranchDir(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	legacy := `{"commits": [{"id": "c1", "branch": "ghost"}]}`
	writeFile(t, scanner.Paths.MeshIndexPath("gizmo"), legacy)

	require.NoError(t, m.MigrateCommitIndexes())
	_, err := os.Stat(scanner.Paths.BranchIndexPath("gizmo", "ghost"))
	assert.True(t, os.IsNotExist(err))
}

func TestMigrator_MigrateAllCommits_UpgradesVersion(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	commitPath := scanner.Paths.CommitJSONPath("gizmo", "main", "2024-01-01_00-00-00")
	writeFile(t, commitPath, `{"data_version": "1.0", "branch": "main", "mesh_name": "gizmo"}`)

	require.NoError(t, m.MigrateAllCommits(context.Background()))

	data, err := os.ReadFile(commitPath)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, CurrentDataVersion, doc["data_version"])
	assert.NotNil(t, doc["exported_components"])

	_, err = os.Stat(commitPath + ".backup")
	assert.NoError(t, err)
}

func TestMigrator_MigrateAllCommits_LeavesCurrentVersionUntouched(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	commitPath := scanner.Paths.CommitJSONPath("gizmo", "main", "2024-01-01_00-00-00")
	writeFile(t, commitPath, `{"data_version": "1.1", "branch": "main", "mesh_name": "gizmo", "message": "hi"}`)

	require.NoError(t, m.MigrateAllCommits(context.Background()))

	_, err := os.Stat(commitPath + ".backup")
	assert.True(t, os.IsNotExist(err))
}

func TestMigrator_RunIfNeeded_NoOpWhenNotNeeded(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	require.NoError(t, m.RunIfNeeded(context.Background()))
}

func TestMigrator_RunIfNeeded_FullSequence(t *testing.T) {
	root := t.TempDir()
	scanner := NewScanner(root)
	m := NewMigrator(scanner)

	require.NoError(t, os.MkdirAll(scanner.Paths.BranchDir("gizmo", "main"), 0o755))
	writeFile(t, scanner.Paths.MeshIndexPath("gizmo"), `{"commits": [{"id": "c1", "branch": "main"}]}`)
	writeFile(t, scanner.Paths.CommitJSONPath("gizmo", "main", "2024-01-01_00-00-00"),
		`{"data_version": "1.0", "branch": "main", "mesh_name": "gizmo"}`)

	require.NoError(t, m.RunIfNeeded(context.Background()))
	assert.False(t, m.NeedsMigration())

	data, err := os.ReadFile(scanner.Paths.CommitJSONPath("gizmo", "main", "2024-01-01_00-00-00"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, CurrentDataVersion, doc["data_version"])
}

package repo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DSLitvinov/difference-engine/internal/apperrors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()
	e, err := NewEngine(root)
	require.NoError(t, err)
	return e
}

func TestEngine_CreateBranch_IsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r1, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)
	assert.Equal(t, "created", r1.Status)

	r2, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)
	assert.Equal(t, "created", r2.Status)

	assert.Contains(t, e.Scanner.ListBranches("gizmo"), "main")
}

func TestEngine_CreateBranch_SanitizesNames(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateBranch(context.Background(), "../evil mesh", "../evil branch")
	require.NoError(t, err)

	meshes := e.Scanner.ListMeshes()
	require.Len(t, meshes, 1)
	assert.NotContains(t, meshes[0], "..")
	assert.NotContains(t, meshes[0], "/")
}

func TestEngine_SetCorrect_RequiresExistingBranch(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)

	_, err = e.SetCorrect(ctx, "gizmo", "nonexistent")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.GetCode(err))

	result, err := e.SetCorrect(ctx, "gizmo", "main")
	require.NoError(t, err)
	assert.Equal(t, "main", result.CorrectBranch)

	branch, ok := e.Scanner.ReadCorrect("gizmo")
	require.True(t, ok)
	assert.Equal(t, "main", branch)
}

func TestEngine_DeleteBranch_ConflictsWithCorrectPointer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)
	_, err = e.SetCorrect(ctx, "gizmo", "main")
	require.NoError(t, err)

	_, err = e.DeleteBranch(ctx, "gizmo", "main")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.GetCode(err))
}

func TestEngine_DeleteBranch_SucceedsWhenNotCorrect(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)
	_, err = e.CreateBranch(ctx, "gizmo", "feature")
	require.NoError(t, err)

	_, err = e.DeleteBranch(ctx, "gizmo", "feature")
	require.NoError(t, err)
	assert.NotContains(t, e.Scanner.ListBranches("gizmo"), "feature")
}

func TestEngine_CreateCommit_MintsIDAndWritesDoc(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)

	result, err := e.CreateCommit(ctx, "gizmo", "main", "first cut", "v1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.CommitID)
	assert.Equal(t, "first cut", result.Commit.Message)
	assert.Equal(t, CurrentDataVersion, result.Commit.DataVersion)

	commits := e.Scanner.ListCommits("gizmo", "main")
	assert.Contains(t, commits, result.CommitID)
}

func TestEngine_CreateCommit_CollidingTimestampsGetMonotonicSuffix(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)

	// Freeze the clock so every mint lands on the same base timestamp,
	// forcing the monotonic suffix path.
	frozen := e.Clock()
	e.Clock = func() time.Time { return frozen }

	first, err := e.CreateCommit(ctx, "gizmo", "main", "one", "")
	require.NoError(t, err)
	second, err := e.CreateCommit(ctx, "gizmo", "main", "two", "")
	require.NoError(t, err)
	third, err := e.CreateCommit(ctx, "gizmo", "main", "three", "")
	require.NoError(t, err)

	assert.NotEqual(t, first.CommitID, second.CommitID)
	assert.NotEqual(t, second.CommitID, third.CommitID)
	assert.Equal(t, first.CommitID+"-2", second.CommitID)
	assert.Equal(t, first.CommitID+"-3", third.CommitID)
}

func TestEngine_DeleteCommit_IsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)
	result, err := e.CreateCommit(ctx, "gizmo", "main", "msg", "")
	require.NoError(t, err)

	_, err = e.DeleteCommit(ctx, "gizmo", "main", result.CommitID)
	require.NoError(t, err)

	// Deleting again is still a success.
	_, err = e.DeleteCommit(ctx, "gizmo", "main", result.CommitID)
	require.NoError(t, err)

	_, err = e.DeleteCommit(ctx, "gizmo", "main", "never-existed")
	require.NoError(t, err)
}

func TestEngine_ConcurrentCreateBranch_SameMesh(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.CreateBranch(ctx, "gizmo", "main")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Contains(t, e.Scanner.ListBranches("gizmo"), "main")
}

func TestEngine_Rescan_RecoversFromExternalDrift(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	_, err := e.CreateBranch(ctx, "gizmo", "main")
	require.NoError(t, err)

	// Simulate external drift: add a branch directory without going
	// through the engine.
	require.NoError(t, os.MkdirAll(e.Paths.BranchDir("gizmo", "sneaky"), 0o755))

	forestBefore := e.Scanner.ReadForest()
	_, hasSneakyBefore := forestBefore.Meshes["gizmo"].Branches["sneaky"]
	assert.False(t, hasSneakyBefore)

	require.NoError(t, e.Rescan(ctx, ""))

	forestAfter := e.Scanner.ReadForest()
	_, hasSneakyAfter := forestAfter.Meshes["gizmo"].Branches["sneaky"]
	assert.True(t, hasSneakyAfter)
}

func TestEngine_NewEngine_CreatesMissingRoot(t *testing.T) {
	root := t.TempDir() + "/nested/data"
	e, err := NewEngine(root)
	require.NoError(t, err)

	_, err = e.CreateBranch(context.Background(), "gizmo", "main")
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

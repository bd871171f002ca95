package repo

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/DSLitvinov/difference-engine/internal/apperrors"
	"github.com/DSLitvinov/difference-engine/internal/atomicfile"
	"github.com/DSLitvinov/difference-engine/internal/logger"
	"github.com/DSLitvinov/difference-engine/internal/meshpath"
	"github.com/DSLitvinov/difference-engine/internal/metrics"
)

// Engine composes the Path Resolver, Atomic Writer, Repository Scanner,
// and Concurrency Controller into the mutating operations the HTTP
// Surface calls (spec §4.5 dispatch rule: lock, mutate, rebuild forest,
// persist forest, respond).
type Engine struct {
	Root    string
	Paths   meshpath.Paths
	Scanner *Scanner
	Locks   *MeshLocks
	Clock   func() time.Time
	Metrics *metrics.Metrics
}

// NewEngine creates an Engine rooted at root, creating the root
// directory if it does not already exist (spec §6 Configuration).
func NewEngine(root string) (*Engine, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.Filesystemf(err, "create repository root %s", root)
	}
	return &Engine{
		Root:    root,
		Paths:   meshpath.New(root),
		Scanner: NewScanner(root),
		Locks:   NewMeshLocks(),
		Clock:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetMetrics attaches a metrics bundle to the engine and its lock
// table. A nil argument (the default) leaves mutation and lock-wait
// instrumentation disabled, matching the rest of the server's
// optional-metrics wiring.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.Metrics = m
	e.Locks.Metrics = m
}

// observeMutation records a completed mutating operation when a
// metrics bundle is attached; it is a no-op otherwise.
func (e *Engine) observeMutation(operation, mesh string, err error) {
	if e.Metrics == nil {
		return
	}
	code := ""
	if err != nil {
		code = string(apperrors.GetCode(err))
	}
	e.Metrics.ObserveMutation(operation, mesh, code)
}

func wrapCtxErr(err error) error {
	if err == context.Canceled || err == context.DeadlineExceeded {
		return apperrors.Cancelledf("request cancelled: %v", err)
	}
	return err
}

// rebuildAndPersistForest runs the Scanner and writes a fresh forest.
// Called at the end of every mutating operation while the mesh lock is
// still held (spec §4.5, I5).
func (e *Engine) rebuildAndPersistForest() error {
	forest := e.Scanner.BuildForest()
	if err := e.Scanner.WriteForest(forest); err != nil {
		return apperrors.Filesystemf(err, "persist forest")
	}
	return nil
}

// CreateBranchResult is returned by CreateBranch.
type CreateBranchResult struct {
	Mesh   string
	Branch string
	Status string // always "created"; the operation is idempotent
}

// CreateBranch creates a branch directory under mesh. Pre-existing
// directories are a success (spec §4.5 validation: idempotent in
// effect).
func (e *Engine) CreateBranch(ctx context.Context, mesh, branch string) (CreateBranchResult, error) {
	meshS := meshpath.Sanitize(mesh)
	branchS := meshpath.Sanitize(branch)

	var result CreateBranchResult
	err := e.Locks.WithLock(ctx, meshS, func() error {
		dir := e.Paths.BranchDir(meshS, branchS)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Filesystemf(err, "create branch directory %s", dir)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.rebuildAndPersistForest(); err != nil {
			return err
		}
		result = CreateBranchResult{Mesh: meshS, Branch: branchS, Status: "created"}
		return nil
	})
	e.observeMutation("create_branch", meshS, err)
	if err != nil {
		return CreateBranchResult{}, wrapCtxErr(err)
	}
	return result, nil
}

// DeleteBranchResult is returned by DeleteBranch.
type DeleteBranchResult struct {
	Mesh   string
	Branch string
	Status string
}

// DeleteBranch removes a branch directory, refusing to remove the
// mesh's current correct-pointer branch (spec §4.5, Conflict).
func (e *Engine) DeleteBranch(ctx context.Context, mesh, branch string) (DeleteBranchResult, error) {
	meshS := meshpath.Sanitize(mesh)
	branchS := meshpath.Sanitize(branch)

	var result DeleteBranchResult
	err := e.Locks.WithLock(ctx, meshS, func() error {
		if current, ok := e.Scanner.ReadCorrect(meshS); ok && current == branchS {
			return apperrors.Conflictf("branch %s is the correct pointer for mesh %s", branchS, meshS)
		}

		dir := e.Paths.BranchDir(meshS, branchS)
		if err := os.RemoveAll(dir); err != nil {
			return apperrors.Filesystemf(err, "delete branch directory %s", dir)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.rebuildAndPersistForest(); err != nil {
			return err
		}
		result = DeleteBranchResult{Mesh: meshS, Branch: branchS, Status: "deleted"}
		return nil
	})
	e.observeMutation("delete_branch", meshS, err)
	if err != nil {
		return DeleteBranchResult{}, wrapCtxErr(err)
	}
	return result, nil
}

// SetCorrectResult is returned by SetCorrect.
type SetCorrectResult struct {
	Mesh          string
	CorrectBranch string
	UpdatedAt     string
}

// SetCorrect points mesh's correct pointer at branch. The branch must
// already exist (spec §4.5, NotFound).
func (e *Engine) SetCorrect(ctx context.Context, mesh, branch string) (SetCorrectResult, error) {
	meshS := meshpath.Sanitize(mesh)
	branchS := meshpath.Sanitize(branch)

	var result SetCorrectResult
	err := e.Locks.WithLock(ctx, meshS, func() error {
		branches := e.Scanner.ListBranches(meshS)
		found := false
		for _, b := range branches {
			if b == branchS {
				found = true
				break
			}
		}
		if !found {
			return apperrors.NotFoundf("branch %s not found for mesh %s", branchS, meshS)
		}

		now := e.Clock().Format(time.RFC3339)
		doc := CorrectDoc{SchemaVersion: SchemaVersion, CurrentBranch: branchS, UpdatedAt: now}
		if err := atomicfile.WriteJSON(e.Paths.CorrectPath(meshS), doc); err != nil {
			return apperrors.Filesystemf(err, "write correct pointer for mesh %s", meshS)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.rebuildAndPersistForest(); err != nil {
			return err
		}
		result = SetCorrectResult{Mesh: meshS, CorrectBranch: branchS, UpdatedAt: now}
		return nil
	})
	e.observeMutation("set_correct", meshS, err)
	if err != nil {
		return SetCorrectResult{}, wrapCtxErr(err)
	}
	return result, nil
}

// CommitResult is returned by CreateCommit.
type CommitResult struct {
	Mesh     string
	Branch   string
	CommitID string
	Commit   CommitDoc
	Status   string
}

// CreateCommit mints a commit identifier server-side and writes its
// commit.json (spec §4.5, §6). If the minted timestamp's directory
// already exists under the branch — two commits within the same second
// — a monotonic "-2", "-3", ... suffix is appended instead of
// overwriting (spec §9 open question, resolved in SPEC_FULL.md §6).
func (e *Engine) CreateCommit(ctx context.Context, mesh, branch, message, tag string) (CommitResult, error) {
	meshS := meshpath.Sanitize(mesh)
	branchS := meshpath.Sanitize(branch)

	var result CommitResult
	err := e.Locks.WithLock(ctx, meshS, func() error {
		base := e.Clock().Format("2006-01-02_15-04-05")
		commitID := base
		for i := 2; dirExists(e.Paths.CommitDir(meshS, branchS, commitID)); i++ {
			commitID = fmt.Sprintf("%s-%d", base, i)
			logger.Warn("repo: commit id collision probe %s for %s/%s (token %s)", commitID, meshS, branchS, uuid.NewString()[:8])
		}

		dir := e.Paths.CommitDir(meshS, branchS, commitID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperrors.Filesystemf(err, "create commit directory %s", dir)
		}

		now := e.Clock().Format(time.RFC3339)
		doc := CommitDoc{
			DataVersion: CurrentDataVersion,
			Datetime:    now,
			Branch:      branchS,
			MeshName:    meshS,
			Message:     message,
			Tag:         tag,
		}
		if err := atomicfile.WriteJSON(e.Paths.CommitJSONPath(meshS, branchS, commitID), doc); err != nil {
			return apperrors.Filesystemf(err, "write commit.json for %s", dir)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.rebuildAndPersistForest(); err != nil {
			return err
		}
		result = CommitResult{Mesh: meshS, Branch: branchS, CommitID: commitID, Commit: doc, Status: "created"}
		return nil
	})
	e.observeMutation("create_commit", meshS, err)
	if err != nil {
		return CommitResult{}, wrapCtxErr(err)
	}
	return result, nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// DeleteCommitResult is returned by DeleteCommit.
type DeleteCommitResult struct {
	Mesh     string
	Branch   string
	CommitID string
	Status   string
}

// DeleteCommit removes a commit directory. A non-existent commit is a
// no-op success (spec §8 boundary behaviour: best-effort idempotent
// delete).
func (e *Engine) DeleteCommit(ctx context.Context, mesh, branch, commitID string) (DeleteCommitResult, error) {
	meshS := meshpath.Sanitize(mesh)
	branchS := meshpath.Sanitize(branch)
	commitS := meshpath.Sanitize(commitID)

	var result DeleteCommitResult
	err := e.Locks.WithLock(ctx, meshS, func() error {
		dir := e.Paths.CommitDir(meshS, branchS, commitS)
		if err := os.RemoveAll(dir); err != nil {
			return apperrors.Filesystemf(err, "delete commit directory %s", dir)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.rebuildAndPersistForest(); err != nil {
			return err
		}
		result = DeleteCommitResult{Mesh: meshS, Branch: branchS, CommitID: commitS, Status: "deleted"}
		return nil
	})
	e.observeMutation("delete_commit", meshS, err)
	if err != nil {
		return DeleteCommitResult{}, wrapCtxErr(err)
	}
	return result, nil
}

// Rescan unconditionally rebuilds and rewrites the forest from the
// ground truth filesystem (spec §4.5, the designated recovery
// primitive). When mesh is non-empty it is only used to echo back in
// the response; the rebuild always covers the whole tree (spec §4.3:
// the forest is a whole-tree snapshot, there is no partial forest).
func (e *Engine) Rescan(ctx context.Context, mesh string) error {
	// Rescan touches the whole tree, not a single mesh's subtree, so it
	// is not gated behind any one mesh's lock; concurrent mutators still
	// serialize their own forest writes behind their own mesh lock, and
	// "last rename wins" applies here exactly as it does between two
	// different meshes' writers (spec §4.4).
	if err := ctx.Err(); err != nil {
		return wrapCtxErr(err)
	}
	return e.rebuildAndPersistForest()
}

package repo

import (
	"os"
	"sort"
	"time"

	"github.com/DSLitvinov/difference-engine/internal/atomicfile"
	"github.com/DSLitvinov/difference-engine/internal/logger"
	"github.com/DSLitvinov/difference-engine/internal/meshpath"
)

// Scanner derives the forest view from the filesystem ground truth
// (spec §4.3). It holds no cached state: every call re-reads disk.
type Scanner struct {
	Paths meshpath.Paths
}

// NewScanner returns a Scanner rooted at root.
func NewScanner(root string) *Scanner {
	return &Scanner{Paths: meshpath.New(root)}
}

// ListMeshes returns every immediate subdirectory of the repository
// root, excluding the reserved forest.json file, in lexicographic order.
func (s *Scanner) ListMeshes() []string {
	return listSubdirs(s.Paths.Root, func(name string) bool {
		return name != meshpath.ForestFileName
	}, false)
}

// ListBranches returns every immediate subdirectory of a mesh, in
// lexicographic order. A missing mesh directory yields an empty slice,
// not an error (spec §4.3 edge-case policy).
func (s *Scanner) ListBranches(mesh string) []string {
	return listSubdirs(s.Paths.MeshDir(mesh), nil, false)
}

// ListCommits returns every immediate subdirectory of a branch, newest
// first (reverse lexicographic, since identifiers are timestamp-shaped
// and monotonic). A missing branch directory yields an empty slice.
func (s *Scanner) ListCommits(mesh, branch string) []string {
	return listSubdirs(s.Paths.BranchDir(mesh, branch), nil, true)
}

// listSubdirs lists immediate subdirectories of dir, optionally filtered
// and optionally reverse-sorted. Unreadable entries are skipped with a
// warning rather than failing the whole listing (spec §4.3).
func listSubdirs(dir string, keep func(name string) bool, reverse bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("repo: failed to read directory %s: %v", dir, err)
		}
		return []string{}
	}

	out := make([]string, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			logger.Warn("repo: failed to stat entry %s in %s: %v", e.Name(), dir, err)
			continue
		}
		if !info.IsDir() {
			continue
		}
		if keep != nil && !keep(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}

	sort.Strings(out)
	if reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// ReadCorrect parses a mesh's correct.json, if present, accepting the
// legacy correct_branch key (spec §4.3).
func (s *Scanner) ReadCorrect(mesh string) (string, bool) {
	var doc CorrectDoc
	present, err := atomicfile.ReadJSON(s.Paths.CorrectPath(mesh), &doc)
	if err != nil {
		logger.Warn("repo: failed to read correct pointer for %s: %v", mesh, err)
		return "", false
	}
	if !present {
		return "", false
	}
	branch := doc.Branch()
	return branch, branch != ""
}

// BuildForest walks the whole filesystem tree and produces the current
// canonical forest snapshot (spec §4.3).
func (s *Scanner) BuildForest() Forest {
	meshes := make(map[string]MeshSummary)
	for _, mesh := range s.ListMeshes() {
		branches := make(map[string]BranchSummary)
		for _, branch := range s.ListBranches(mesh) {
			commits := make([]CommitSummary, 0)
			for _, id := range s.ListCommits(mesh, branch) {
				commits = append(commits, CommitSummary{ID: id})
			}
			branches[branch] = BranchSummary{Commits: commits}
		}

		var correctPtr *string
		if branch, ok := s.ReadCorrect(mesh); ok {
			correctPtr = &branch
		}

		meshes[mesh] = MeshSummary{CorrectBranch: correctPtr, Branches: branches}
	}

	return Forest{
		SchemaVersion: SchemaVersion,
		UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		Meshes:        meshes,
	}
}

// GetMesh returns the single-mesh view used by GET /mesh/{mesh}.
func (s *Scanner) GetMesh(mesh string) MeshSummary {
	branches := make(map[string]BranchSummary)
	for _, branch := range s.ListBranches(mesh) {
		commits := make([]CommitSummary, 0)
		for _, id := range s.ListCommits(mesh, branch) {
			commits = append(commits, CommitSummary{ID: id})
		}
		branches[branch] = BranchSummary{Commits: commits}
	}
	var correctPtr *string
	if branch, ok := s.ReadCorrect(mesh); ok {
		correctPtr = &branch
	}
	return MeshSummary{CorrectBranch: correctPtr, Branches: branches}
}

// ReadForest returns the persisted forest.json, or an empty forest
// stamped "now" if it does not yet exist.
func (s *Scanner) ReadForest() Forest {
	var f Forest
	present, err := atomicfile.ReadJSON(s.Paths.ForestPath(), &f)
	if err != nil {
		logger.Warn("repo: failed to read forest: %v", err)
	}
	if !present || f.Meshes == nil {
		return Forest{
			SchemaVersion: SchemaVersion,
			UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
			Meshes:        map[string]MeshSummary{},
		}
	}
	return f
}

// WriteForest persists forest atomically, stamping UpdatedAt to now.
func (s *Scanner) WriteForest(forest Forest) error {
	forest.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return atomicfile.WriteJSON(s.Paths.ForestPath(), forest)
}

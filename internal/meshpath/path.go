// Package meshpath maps logical mesh/branch/commit names to filesystem
// paths under a repository root, sanitizing every user-supplied segment
// along the way.
package meshpath

import (
	"path/filepath"
	"regexp"
	"strings"
)

// untitled is the sentinel returned by Sanitize when the input reduces
// to nothing safe to put on disk.
const untitled = "untitled"

// ForestFileName is the reserved root-level file name that is never
// treated as a mesh directory.
const ForestFileName = "forest.json"

// CorrectFileName is the per-mesh pointer file name.
const CorrectFileName = "correct.json"

// CommitFileName is the per-commit metadata file name.
const CommitFileName = "commit.json"

var disallowed = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

var spaceRun = regexp.MustCompile(` +`)

// Sanitize turns any string into a safe filesystem directory segment:
// trim whitespace, collapse runs of spaces to underscores, strip
// anything outside [A-Za-z0-9._-], trim leading/trailing dots (so a
// traversal segment like ".." never survives intact), and fall back to
// "untitled" if that leaves nothing. Sanitize is idempotent on its own
// output.
func Sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = spaceRun.ReplaceAllString(name, "_")
	name = disallowed.ReplaceAllString(name, "")
	name = strings.Trim(name, ".")
	if name == "" {
		return untitled
	}
	return name
}

// Paths resolves logical identifiers to filesystem paths rooted at Root.
type Paths struct {
	Root string
}

// New returns a Paths rooted at root.
func New(root string) Paths {
	return Paths{Root: root}
}

// ForestPath returns the path of the repository-wide forest index.
func (p Paths) ForestPath() string {
	return filepath.Join(p.Root, ForestFileName)
}

// MeshDir returns the directory for a mesh.
func (p Paths) MeshDir(mesh string) string {
	return filepath.Join(p.Root, Sanitize(mesh))
}

// CorrectPath returns the path of a mesh's correct-pointer document.
func (p Paths) CorrectPath(mesh string) string {
	return filepath.Join(p.MeshDir(mesh), CorrectFileName)
}

// BranchDir returns the directory for a branch of a mesh.
func (p Paths) BranchDir(mesh, branch string) string {
	return filepath.Join(p.MeshDir(mesh), Sanitize(branch))
}

// CommitDir returns the directory for a commit of a branch.
func (p Paths) CommitDir(mesh, branch, commit string) string {
	return filepath.Join(p.BranchDir(mesh, branch), Sanitize(commit))
}

// CommitJSONPath returns the path of a commit's metadata document.
func (p Paths) CommitJSONPath(mesh, branch, commit string) string {
	return filepath.Join(p.CommitDir(mesh, branch, commit), CommitFileName)
}

// BranchIndexPath returns the path of a branch's optional commit index,
// maintained by collaborators and never read as ground truth by this
// engine (see spec §9, inter-branch commit-index files).
func (p Paths) BranchIndexPath(mesh, branch string) string {
	return filepath.Join(p.BranchDir(mesh, branch), "commits_index.json")
}

// MeshIndexPath returns the legacy mesh-level commit index path used
// before the branch-level layout (see internal/repo/migration.go).
func (p Paths) MeshIndexPath(mesh string) string {
	return filepath.Join(p.MeshDir(mesh), "commits_index.json")
}

package repo

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/DSLitvinov/difference-engine/internal/apperrors"
	"github.com/DSLitvinov/difference-engine/internal/atomicfile"
	"github.com/DSLitvinov/difference-engine/internal/logger"
)

// legacyDataVersion is the data_version assumed for a commit.json that
// predates the field entirely.
const legacyDataVersion = "1.0"

// defaultExportedComponents is stamped onto any commit.json migrated
// forward from version 1.0, matching the historical default export set.
func defaultExportedComponents() map[string]any {
	return map[string]any{
		"geometry":  true,
		"transform": true,
		"materials": true,
		"uv_layout": true,
	}
}

// migrationCache remembers, per repository root, whether a legacy
// mesh-level commits_index.json has already been found and migrated
// away, so repeated NeedsMigration calls don't re-walk the tree.
type migrationCache struct {
	mu     sync.Mutex
	needed map[string]bool
}

var globalMigrationCache = &migrationCache{needed: make(map[string]bool)}

func (c *migrationCache) get(root string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.needed[root]
	return v, ok
}

func (c *migrationCache) set(root string, needed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needed[root] = needed
}

func (c *migrationCache) clear(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.needed, root)
}

// Migrator runs the integrity & migration subsystem: upgrading
// commit.json documents to the current data version, and promoting
// legacy mesh-level commit indexes to per-branch indexes.
type Migrator struct {
	Scanner *Scanner
}

// NewMigrator returns a Migrator operating on the same root as scanner.
func NewMigrator(scanner *Scanner) *Migrator {
	return &Migrator{Scanner: scanner}
}

// NeedsMigration reports whether any mesh under the repository still
// carries a legacy mesh-level commits_index.json. The result is cached
// per root until ClearCache is called.
func (m *Migrator) NeedsMigration() bool {
	root := m.Scanner.Paths.Root
	if v, ok := globalMigrationCache.get(root); ok {
		return v
	}

	needed := false
	for _, mesh := range m.Scanner.ListMeshes() {
		if _, err := os.Stat(m.Scanner.Paths.MeshIndexPath(mesh)); err == nil {
			needed = true
			break
		}
	}
	globalMigrationCache.set(root, needed)
	return needed
}

// ClearCache forgets the cached migration-needed status for this
// Migrator's root, forcing the next NeedsMigration call to re-scan.
func (m *Migrator) ClearCache() {
	globalMigrationCache.clear(m.Scanner.Paths.Root)
}

type legacyIndexEntry map[string]any

type legacyIndex struct {
	Commits     []legacyIndexEntry `json:"commits"`
	LastUpdated string             `json:"last_updated"`
}

type branchIndex struct {
	Commits      []legacyIndexEntry `json:"commits"`
	LastUpdated  string             `json:"last_updated"`
	MigratedFrom string             `json:"migrated_from"`
}

// MigrateCommitIndexes partitions every mesh-level commits_index.json
// by each entry's branch field, writes one commits_index.json per
// branch directory, and renames the old mesh-level file to .backup.
func (m *Migrator) MigrateCommitIndexes() error {
	for _, mesh := range m.Scanner.ListMeshes() {
		oldPath := m.Scanner.Paths.MeshIndexPath(mesh)
		data, err := os.ReadFile(oldPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return apperrors.Filesystemf(err, "read legacy commit index for %s", mesh)
		}

		var old legacyIndex
		if err := json.Unmarshal(data, &old); err != nil {
			logger.Warn("repo: legacy commit index for %s is not valid JSON, skipping: %v", mesh, err)
			continue
		}

		byBranch := make(map[string][]legacyIndexEntry)
		for _, entry := range old.Commits {
			branch, _ := entry["branch"].(string)
			if branch == "" {
				branch = "main"
			}
			byBranch[branch] = append(byBranch[branch], entry)
		}

		for branch, commits := range byBranch {
			branchDir := m.Scanner.Paths.BranchDir(mesh, branch)
			if _, err := os.Stat(branchDir); err != nil {
				logger.Warn("repo: branch directory %s does not exist, skipping legacy index entries", branchDir)
				continue
			}
			newIndex := branchIndex{Commits: commits, LastUpdated: old.LastUpdated, MigratedFrom: "mesh_level"}
			newPath := m.Scanner.Paths.BranchIndexPath(mesh, branch)
			encoded, err := json.Marshal(newIndex)
			if err != nil {
				return apperrors.Internalf(err, "encode branch index for %s/%s", mesh, branch)
			}
			if err := os.WriteFile(newPath, encoded, 0o644); err != nil {
				return apperrors.Filesystemf(err, "write branch index for %s/%s", mesh, branch)
			}
		}

		backupPath := oldPath + ".backup"
		if err := os.Rename(oldPath, backupPath); err != nil {
			logger.Warn("repo: failed to back up legacy commit index for %s: %v", mesh, err)
		}
	}

	m.ClearCache()
	return nil
}

// commitJSONVersion reads data_version out of a commit.json, defaulting
// to "1.0" for documents written before the field existed.
func commitJSONVersion(path string) (map[string]any, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, "", err
	}
	version, _ := doc["data_version"].(string)
	if version == "" {
		version = legacyDataVersion
	}
	return doc, version, nil
}

// migrateCommitFile upgrades a single commit.json to CurrentDataVersion
// in place, backing up the original on first touch.
func migrateCommitFile(path string) error {
	doc, version, err := commitJSONVersion(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if version == CurrentDataVersion {
		return nil
	}

	backupPath := path + ".backup"
	if _, err := os.Stat(backupPath); os.IsNotExist(err) {
		original, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(backupPath, original, 0o644); err != nil {
			return err
		}
	}

	doc["data_version"] = CurrentDataVersion
	if _, ok := doc["exported_components"]; !ok {
		doc["exported_components"] = defaultExportedComponents()
	}

	return atomicfile.WriteJSON(path, doc)
}

// MigrateAllCommits walks every mesh, fanning out one goroutine per
// mesh to upgrade that mesh's commit.json documents concurrently. A
// commit that fails to migrate is logged and skipped, so the sweep
// always covers every mesh and returns nil; ctx is not consulted by the
// per-mesh workers.
func (m *Migrator) MigrateAllCommits(ctx context.Context) error {
	meshes := m.Scanner.ListMeshes()
	g, _ := errgroup.WithContext(ctx)

	for _, mesh := range meshes {
		mesh := mesh
		g.Go(func() error {
			return m.migrateMeshCommits(mesh)
		})
	}
	return g.Wait()
}

func (m *Migrator) migrateMeshCommits(mesh string) error {
	for _, branch := range m.Scanner.ListBranches(mesh) {
		if branch == ".backup" {
			continue
		}
		for _, commit := range m.Scanner.ListCommits(mesh, branch) {
			path := m.Scanner.Paths.CommitJSONPath(mesh, branch, commit)
			if err := migrateCommitFile(path); err != nil {
				logger.Warn("repo: failed to migrate commit %s/%s/%s: %v", mesh, branch, commit, err)
			}
		}
	}
	return nil
}

// RunIfNeeded performs the full migration sequence — commit index
// promotion followed by a commit-document version sweep — only if
// NeedsMigration reports true, mirroring the lazy on-first-touch policy
// of the original add-on.
func (m *Migrator) RunIfNeeded(ctx context.Context) error {
	if !m.NeedsMigration() {
		return nil
	}
	logger.Info("repo: legacy data detected under %s, migrating", m.Scanner.Paths.Root)
	if err := m.MigrateCommitIndexes(); err != nil {
		return err
	}
	if err := m.MigrateAllCommits(ctx); err != nil {
		return err
	}
	logger.Info("repo: migration complete for %s", m.Scanner.Paths.Root)
	return nil
}

// Package repo implements the repository engine: the Repository
// Scanner, the Concurrency Controller, the mutating operations, and the
// integrity/migration subsystem, all composed into an Engine.
package repo

import "encoding/json"

// CorrectDoc is the on-disk shape of correct.json. The legacy
// CorrectBranch key is accepted on read for backward compatibility
// (spec §4.3); writes always use CurrentBranch.
type CorrectDoc struct {
	SchemaVersion string `json:"schema_version"`
	CurrentBranch string `json:"current_branch,omitempty"`
	CorrectBranch string `json:"correct_branch,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

// Branch returns whichever of the two pointer keys is populated,
// preferring current_branch.
func (c CorrectDoc) Branch() string {
	if c.CurrentBranch != "" {
		return c.CurrentBranch
	}
	return c.CorrectBranch
}

// CommitDoc is the on-disk shape of commit.json. Additional
// application-defined keys are preserved verbatim via Extra.
type CommitDoc struct {
	DataVersion string         `json:"data_version"`
	Datetime    string         `json:"datetime"`
	Branch      string         `json:"branch"`
	MeshName    string         `json:"mesh_name"`
	Message     string         `json:"message,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Extra       map[string]any `json:"-"`
}

// commitDocFields lists CommitDoc's own JSON keys, used by
// (Un)MarshalJSON to separate them from Extra.
var commitDocFields = map[string]bool{
	"data_version": true, "datetime": true, "branch": true,
	"mesh_name": true, "message": true, "tag": true, "parent_id": true,
}

// MarshalJSON flattens Extra alongside CommitDoc's own fields so
// application-defined keys round-trip verbatim (spec §6, commit.json).
func (c CommitDoc) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+7)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["data_version"] = c.DataVersion
	out["datetime"] = c.Datetime
	out["branch"] = c.Branch
	out["mesh_name"] = c.MeshName
	if c.Message != "" {
		out["message"] = c.Message
	}
	if c.Tag != "" {
		out["tag"] = c.Tag
	}
	if c.ParentID != "" {
		out["parent_id"] = c.ParentID
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits unknown keys into Extra, preserving them verbatim
// for the next write.
func (c *CommitDoc) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type known struct {
		DataVersion string `json:"data_version"`
		Datetime    string `json:"datetime"`
		Branch      string `json:"branch"`
		MeshName    string `json:"mesh_name"`
		Message     string `json:"message"`
		Tag         string `json:"tag"`
		ParentID    string `json:"parent_id"`
	}
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	c.DataVersion = k.DataVersion
	c.Datetime = k.Datetime
	c.Branch = k.Branch
	c.MeshName = k.MeshName
	c.Message = k.Message
	c.Tag = k.Tag
	c.ParentID = k.ParentID

	c.Extra = make(map[string]any, len(raw))
	for key, v := range raw {
		if commitDocFields[key] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return err
		}
		c.Extra[key] = decoded
	}
	return nil
}

// CommitSummary is the elided per-commit metadata the forest carries;
// richer values may be present if written by collaborators, but the
// Scanner always emits nulls for datetime/message/tag (spec §4.3).
type CommitSummary struct {
	ID       string  `json:"id"`
	Datetime *string `json:"datetime"`
	Message  *string `json:"message"`
	Tag      *string `json:"tag"`
}

// BranchSummary is a branch's forest entry.
type BranchSummary struct {
	Commits []CommitSummary `json:"commits"`
}

// MeshSummary is a mesh's forest entry.
type MeshSummary struct {
	CorrectBranch *string                  `json:"correct_branch"`
	Branches      map[string]BranchSummary `json:"branches"`
}

// Forest is the repository-wide derived index (spec §3, §4.3).
type Forest struct {
	SchemaVersion string                 `json:"schema_version"`
	UpdatedAt     string                 `json:"updated_at"`
	Meshes        map[string]MeshSummary `json:"meshes"`
}

// CurrentDataVersion is the commit.json schema version this engine
// writes; values read with an older version are upgraded in place
// (spec §4.5 integrity & migration, item 2).
const CurrentDataVersion = "1.1"

// SchemaVersion is the schema_version stamped on forest.json and
// correct.json.
const SchemaVersion = "1.0"

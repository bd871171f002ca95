package meshpath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_Fixpoint(t *testing.T) {
	cases := []string{
		"main", "  main  ", "feature branch", "../evil name",
		"!!!@@@", "", "...", "a.b.c", "v1.0-rc1", "café",
	}
	for _, c := range cases {
		once := Sanitize(c)
		twice := Sanitize(once)
		assert.Equal(t, once, twice, "sanitize not idempotent for %q", c)
		for _, r := range once {
			assert.True(t, isAllowed(r), "char %q leaked through for input %q -> %q", r, c, once)
		}
	}
}

func isAllowed(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '.' || r == '_' || r == '-':
		return true
	}
	return false
}

func TestSanitize_AllDisallowedFallsBackToUntitled(t *testing.T) {
	assert.Equal(t, "untitled", Sanitize("!!!@@@"))
	assert.Equal(t, "untitled", Sanitize("..."))
	assert.Equal(t, "untitled", Sanitize("   "))
	assert.Equal(t, "untitled", Sanitize(""))
}

func TestSanitize_TraversalNeverSurvives(t *testing.T) {
	got := Sanitize("../evil name")
	assert.False(t, strings.Contains(got, ".."))
	assert.Equal(t, "evil_name", got)
}

func TestSanitize_SpacesBecomeUnderscores(t *testing.T) {
	assert.Equal(t, "feature_branch", Sanitize("feature branch"))
	assert.Equal(t, "a_b", Sanitize("a   b"))
}

func TestPaths_Layout(t *testing.T) {
	p := New("/r")
	assert.Equal(t, "/r/forest.json", p.ForestPath())
	assert.Equal(t, "/r/bad", p.MeshDir("../../bad"))
	assert.Equal(t, "/r/bad/correct.json", p.CorrectPath("../../bad"))
	assert.Equal(t, "/r/bad/evil_name", p.BranchDir("../../bad", "../evil name"))
	assert.Equal(t, "/r/bad/evil_name/2025-01-02_03-04-05", p.CommitDir("../../bad", "../evil name", "2025-01-02_03-04-05"))
	assert.Equal(t, "/r/bad/evil_name/2025-01-02_03-04-05/commit.json", p.CommitJSONPath("../../bad", "../evil name", "2025-01-02_03-04-05"))
}

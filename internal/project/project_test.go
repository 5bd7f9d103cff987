package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionMatches(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		appendVersion string
		recipeVersion string
		want          bool
	}{
		{"no append version", "", "1.2.3", true},
		{"no versions at all", "", "", true},
		{"wildcard", "%", "1.2.3", true},
		{"wildcard without recipe version", "%", "", true},
		{"prefix match", "6.1", "6.1.2", true},
		{"prefix mismatch", "6.2", "6.1.2", false},
		{"recipe version missing", "anything", "", false},
		{"trailing wildcard", "1.%", "1.36.1", true},
		{"trailing wildcard mismatch", "2.%", "1.36.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VersionMatches(tt.appendVersion, tt.recipeVersion))
		})
	}
}

func TestSplitVersioned(t *testing.T) {
	t.Parallel()
	name, version := SplitVersioned("/layers/meta/busybox_1.36.1.bb")
	assert.Equal(t, "busybox", name)
	assert.Equal(t, "1.36.1", version)

	name, version = SplitVersioned("busybox_%.bbappend")
	assert.Equal(t, "busybox", name)
	assert.Equal(t, "%", version)

	name, version = SplitVersioned("base-files.bbappend")
	assert.Equal(t, "base-files", name)
	assert.Empty(t, version)

	// First underscore wins even for names that contain underscores.
	name, version = SplitVersioned("foo_bar_1.0.bb")
	assert.Equal(t, "foo", name)
	assert.Equal(t, "bar_1.0", version)
}

func TestSnapshotLookups(t *testing.T) {
	t.Parallel()
	s := Empty()
	s.Layers = append(s.Layers, Layer{Name: "core", Path: "/l/core", Priority: 5})
	s.Classes = append(s.Classes,
		Element{Name: "base", Path: "/l/core/classes/base.bbclass"},
		Element{Name: "base", Path: "/l/other/classes/base.bbclass"},
	)
	s.Recipes = append(s.Recipes, Element{Name: "busybox", Version: "1.36.1"})

	require.NotNil(t, s.Layer("core"))
	assert.Nil(t, s.Layer("missing"))
	assert.Len(t, s.ClassesNamed("base"), 2)
	assert.Empty(t, s.IncludesNamed("base"))
	require.NotNil(t, s.Recipe("busybox"))
	assert.Equal(t, "1.36.1", s.Recipe("busybox").Version)
}

func TestWithWorkspaces_LeavesOriginalUntouched(t *testing.T) {
	t.Parallel()
	s := Empty()
	next := s.WithWorkspaces([]Workspace{{Name: "busybox", Path: "/ws/busybox"}})
	assert.Empty(t, s.Workspaces)
	assert.Len(t, next.Workspaces, 1)
}

func TestStem(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "base", Stem("/a/b/base.bbclass"))
	assert.Equal(t, "some-package+1", Stem("some-package+1.inc"))
}

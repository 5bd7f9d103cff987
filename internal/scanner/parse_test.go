package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/bbls/internal/project"
)

const showLayersOut = `NOTE: Starting bitbake server...
layer                 path                                      priority
==========================================================================
meta                  /poky/meta                                5
meta-custom           /poky/meta-custom                         6
half-row              /poky/half
bad-priority          /poky/bad                                 high
`

const showRecipesOut = `NOTE: Starting bitbake server...
Loading cache...done.
=== Available recipes: ===
acl:
  meta                 2.3.1
busybox:
  meta                 1.36.1
  meta-custom          1.35.0 (skipped)
no-providers:
gcc-cross-x86_64:
  meta                 13.2.0
`

const showAppendsOut = `NOTE: Starting bitbake server...
=== Appended recipes ===
busybox_1.36.1.bb:
  /poky/meta-custom/recipes-core/busybox/busybox_%.bbappend
  /poky/meta-custom/recipes-core/busybox/busybox_1.35.bbappend
  /poky/meta-other/busybox_1.36.bbappend
unknown_1.0.bb:
  /poky/meta-custom/unknown_1.0.bbappend
`

func TestParseLayers(t *testing.T) {
	t.Parallel()
	rows := ParseLayers(showLayersOut)
	assert.Equal(t, []LayerRow{
		{Name: "meta", Path: "/poky/meta", Priority: 5},
		{Name: "meta-custom", Path: "/poky/meta-custom", Priority: 6},
	}, rows)
}

func TestParseLayers_NoHeader(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ParseLayers("ERROR: no build directory\nmeta /poky/meta 5\n"))
}

func TestParseRecipes(t *testing.T) {
	t.Parallel()
	groups := ParseRecipes(showRecipesOut)
	require.Len(t, groups, 3)

	assert.Equal(t, "acl", groups[0].Name)
	assert.Equal(t, []project.Provider{{Layer: "meta", Version: "2.3.1"}}, groups[0].Providers)

	assert.Equal(t, "busybox", groups[1].Name)
	assert.Equal(t, []project.Provider{
		{Layer: "meta", Version: "1.36.1"},
		{Layer: "meta-custom", Version: "1.35.0", Skipped: true},
	}, groups[1].Providers)

	// The header without provider lines is dropped.
	assert.Equal(t, "gcc-cross-x86_64", groups[2].Name)
}

func TestParseAppends(t *testing.T) {
	t.Parallel()
	groups := ParseAppends(showAppendsOut)
	require.Len(t, groups, 2)
	assert.Equal(t, "busybox_1.36.1.bb", groups[0].RecipeFile)
	assert.Len(t, groups[0].Appends, 3)
	assert.Equal(t, "unknown_1.0.bb", groups[1].RecipeFile)
	assert.Equal(t, []string{"/poky/meta-custom/unknown_1.0.bbappend"}, groups[1].Appends)
}

func TestParseOverrides(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		out  string
		want []string
	}{
		{
			name: "value",
			out:  "#\n# $OVERRIDES [2 operations]\n#\nOVERRIDES=\"linux:x86-64:pn-busybox:class-target\"\n",
			want: []string{"linux", "x86-64", "pn-busybox", "class-target"},
		},
		{name: "empty value", out: "OVERRIDES=\"\"\n", want: []string{}},
		{name: "absent", out: "ERROR: Unable to find variable\n", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseOverrides(tt.out))
		})
	}
}

func TestParseWorkspaces(t *testing.T) {
	t.Parallel()
	out := "NOTE: Starting bitbake server...\r\nbusybox: /poky/build/workspace/sources/busybox\r\nacl: /poky/build/workspace/sources/acl\n"
	assert.Equal(t, []project.Workspace{
		{Name: "busybox", Path: "/poky/build/workspace/sources/busybox"},
		{Name: "acl", Path: "/poky/build/workspace/sources/acl"},
	}, ParseWorkspaces(out))

	assert.Equal(t, []project.Workspace{}, ParseWorkspaces("No recipes currently in your workspace\n"))
}

func TestParseRecipePaths(t *testing.T) {
	t.Parallel()
	out := "=== Matching recipes: ===\ngcc-cross-x86_64:\n  /poky/meta/recipes-devtools/gcc/gcc-cross_13.2.bb (meta)\n  notes.bbclass\n"
	assert.Equal(t, []string{"/poky/meta/recipes-devtools/gcc/gcc-cross_13.2.bb"}, ParseRecipePaths(out))
}

func TestAssignRecipePaths(t *testing.T) {
	t.Parallel()
	recipes := []project.Element{
		{Name: "busybox", Version: "1.36.1"},
		{Name: "acl", Version: "2.3.1"},
		{Name: "gcc-cross-x86_64", Version: "13.2.0"},
	}
	files := []project.Element{
		{Path: "/poky/meta/busybox_1.35.0.bb"},
		{Path: "/poky/meta/busybox_1.36.1.bb"},
		{Path: "/poky/meta/busybox_git.bb"},
		{Path: "/poky/meta/acl_2.3.1.bb"},
		{Path: "/poky/meta-custom/acl_2.3.1.bb"},
		{Path: "/poky/meta/gcc-cross_13.2.bb"},
	}
	AssignRecipePaths(recipes, files)

	assert.Equal(t, "/poky/meta/busybox_1.36.1.bb", recipes[0].Path, "file matching the recipe version wins")
	assert.Equal(t, "/poky/meta/acl_2.3.1.bb", recipes[1].Path, "first file wins otherwise")
	assert.Empty(t, recipes[2].Path)
}

func TestAssignRecipePaths_SeveralVersionsOfOneRecipe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		version string
		files   []string
		want    string
	}{
		{"matching version listed last", "2.0", []string{"/l/hello_1.0.bb", "/l/hello_2.0.bb"}, "/l/hello_2.0.bb"},
		{"matching version listed first", "2.0", []string{"/l/hello_2.0.bb", "/l/hello_1.0.bb"}, "/l/hello_2.0.bb"},
		{"no matching version keeps the first", "3.0", []string{"/l/hello_1.0.bb", "/l/hello_2.0.bb"}, "/l/hello_1.0.bb"},
		{"unversioned file then versioned", "2.0", []string{"/l/hello.bb", "/l/hello_2.0.bb"}, "/l/hello_2.0.bb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipes := []project.Element{{Name: "hello", Version: tt.version}}
			files := make([]project.Element, 0, len(tt.files))
			for _, f := range tt.files {
				files = append(files, project.Element{Path: f})
			}
			AssignRecipePaths(recipes, files)
			assert.Equal(t, tt.want, recipes[0].Path)
		})
	}
}

func TestStageError(t *testing.T) {
	t.Parallel()
	err := &StageError{Stage: StageLayers, Status: 1, Stderr: "ERROR: no bblayers.conf\n"}
	assert.Equal(t, "layer discovery failed: exit status 1: ERROR: no bblayers.conf", err.Error())
	assert.ErrorIs(t, &StageError{Stage: StageRecipes, Err: ErrNoDriver}, ErrNoDriver)
}

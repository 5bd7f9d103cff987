package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/bbls/internal/driver"
	"github.com/jward/bbls/internal/driver/drivertest"
	"github.com/jward/bbls/internal/hostfs"
	"github.com/jward/bbls/internal/pathmap"
	"github.com/jward/bbls/internal/project"
)

var pokyFiles = []string{
	"/poky/meta/classes/base.bbclass",
	"/poky/meta/classes-recipe/autotools.bbclass",
	"/poky/meta/recipes-core/busybox/busybox_1.36.1.bb",
	"/poky/meta/recipes-core/busybox/busybox.inc",
	"/poky/meta/recipes-support/acl/acl_2.3.1.bb",
	"/poky/meta-custom/classes/custom.bbclass",
	"/poky/meta-custom/recipes-core/busybox/busybox_%.bbappend",
	"/poky/meta-custom/recipes-core/busybox/busybox_1.35.bbappend",
	"/poky/meta-other/busybox_1.36.bbappend",
	"/poky/build/workspace/sources/busybox/Makefile",
}

// newTestScanner returns a scanner over a host-native poky checkout with every
// bitbake command answered.
func newTestScanner(t *testing.T, opts ...Option) (*Scanner, *drivertest.Fake) {
	t.Helper()
	runner := drivertest.New().
		On(CmdShowLayers, 0, showLayersOut).
		On(CmdShowRecipes, 0, showRecipesOut).
		On(CmdShowAppends, 0, showAppendsOut).
		On(CmdGetOverrides, 0, "OVERRIDES=\"linux:x86-64:class-target\"\n").
		On(CmdDevtoolStatus, 0, "busybox: /poky/build/workspace/sources/busybox\n")
	fsys := hostfs.NewMemFS(pokyFiles...)
	return New(runner, fsys, pathmap.New(runner, fsys, "/poky"), opts...), runner
}

func TestRescanProject_BuildsSnapshot(t *testing.T) {
	t.Parallel()
	sc, _ := newTestScanner(t)
	require.NoError(t, sc.RescanProject(context.Background()))

	snap := sc.Snapshot()
	meta := &project.Layer{Name: "meta", Path: "/poky/meta", Priority: 5}
	custom := &project.Layer{Name: "meta-custom", Path: "/poky/meta-custom", Priority: 6}

	assert.Equal(t, []project.Layer{*meta, *custom}, snap.Layers)
	assert.Equal(t, []project.Element{
		{Name: "autotools", Path: "/poky/meta/classes-recipe/autotools.bbclass", Layer: meta},
		{Name: "base", Path: "/poky/meta/classes/base.bbclass", Layer: meta},
		{Name: "custom", Path: "/poky/meta-custom/classes/custom.bbclass", Layer: custom},
	}, snap.Classes)
	assert.Equal(t, []project.Element{
		{Name: "busybox", Path: "/poky/meta/recipes-core/busybox/busybox.inc", Layer: meta},
	}, snap.Includes)

	require.Len(t, snap.Recipes, 3)
	acl := snap.Recipe("acl")
	require.NotNil(t, acl)
	assert.Equal(t, "/poky/meta/recipes-support/acl/acl_2.3.1.bb", acl.Path)
	assert.Equal(t, "2.3.1", acl.Version)
	assert.Equal(t, meta, acl.Layer)
	assert.Empty(t, acl.Appends)

	busybox := snap.Recipe("busybox")
	require.NotNil(t, busybox)
	assert.Equal(t, "/poky/meta/recipes-core/busybox/busybox_1.36.1.bb", busybox.Path)
	assert.Equal(t, "1.36.1", busybox.Version)
	assert.Len(t, busybox.Providers, 2)
	assert.Equal(t, []project.Append{
		{Path: "/poky/meta-custom/recipes-core/busybox/busybox_%.bbappend", Version: "%"},
		{Path: "/poky/meta-other/busybox_1.36.bbappend", Version: "1.36"},
	}, busybox.Appends, "the 1.35 append does not apply to 1.36.1")

	gcc := snap.Recipe("gcc-cross-x86_64")
	require.NotNil(t, gcc)
	assert.Empty(t, gcc.Path)

	assert.Equal(t, []string{"linux", "x86-64", "class-target"}, snap.Overrides)
	assert.Equal(t, []project.Workspace{{Name: "busybox", Path: "/poky/build/workspace/sources/busybox"}}, snap.Workspaces)
}

func TestRescanProject_Idempotent(t *testing.T) {
	t.Parallel()
	sc, _ := newTestScanner(t)
	require.NoError(t, sc.RescanProject(context.Background()))
	first := sc.Snapshot()
	require.NoError(t, sc.RescanProject(context.Background()))
	second := sc.Snapshot()

	assert.NotSame(t, first, second)
	assert.Equal(t, first, second)
}

func TestRescanProject_NoDriver(t *testing.T) {
	t.Parallel()
	sc := New(nil, hostfs.NewMemFS(), nil)
	assert.ErrorIs(t, sc.RescanProject(context.Background()), ErrNoDriver)
	assert.ErrorIs(t, sc.RescanDevtoolWorkspaces(context.Background()), ErrNoDriver)
	assert.Equal(t, project.Empty(), sc.Snapshot())
}

func TestRescanProject_StageFailureKeepsPrevious(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t)
	require.NoError(t, sc.RescanProject(context.Background()))
	previous := sc.Snapshot()

	var events []Event
	sc.Subscribe(func(ev Event) { events = append(events, ev) })

	runner.Fail(CmdShowRecipes, 1, "ERROR: parsing halted")
	require.NoError(t, sc.RescanProject(context.Background()))

	assert.Same(t, previous, sc.Snapshot())
	require.Len(t, events, 2)
	assert.Equal(t, ScanStarted, events[0].Kind)
	assert.Equal(t, ScanReady, events[1].Kind)
	assert.Same(t, previous, events[1].Snapshot)
	assert.Equal(t, 1, runner.Count(CmdShowAppends), "later stages do not run after a failure")
}

func TestRescanProject_KilledCommandAborts(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t)
	runner.Hook = func(_ context.Context, command string) (*driver.Result, error) {
		if command == CmdShowLayers {
			return nil, driver.ErrKilled
		}
		return nil, nil
	}
	require.NoError(t, sc.RescanProject(context.Background()))
	assert.Equal(t, project.Empty(), sc.Snapshot())
	assert.Zero(t, runner.Count(CmdShowRecipes))
}

func TestRescanProject_CoalescesOverlappingRequests(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	runner.Hook = func(_ context.Context, command string) (*driver.Result, error) {
		if command == CmdShowLayers {
			once.Do(func() {
				close(started)
				<-release
			})
		}
		return nil, nil
	}

	var mu sync.Mutex
	starts := 0
	sc.Subscribe(func(ev Event) {
		if ev.Kind == ScanStarted {
			mu.Lock()
			starts++
			mu.Unlock()
		}
	})

	done := make(chan error, 1)
	go func() { done <- sc.RescanProject(context.Background()) }()
	<-started

	for range 3 {
		require.NoError(t, sc.RescanProject(context.Background()))
	}
	running, pending := sc.State().Running()
	assert.True(t, running)
	assert.True(t, pending)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 2, runner.Count(CmdShowLayers), "requests during a cycle collapse into one more cycle")
	mu.Lock()
	assert.Equal(t, 2, starts)
	mu.Unlock()

	running, pending = sc.State().Running()
	assert.False(t, running)
	assert.False(t, pending)
}

func TestRescanProject_PendingCycleSurvivesFirstCallerCancel(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	runner.Hook = func(ctx context.Context, command string) (*driver.Result, error) {
		if command == CmdShowLayers {
			first := false
			once.Do(func() {
				first = true
				close(started)
				<-release
			})
			if first || ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.RescanProject(ctx) }()
	<-started

	require.NoError(t, sc.RescanProject(context.Background()))
	cancel()
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 2, runner.Count(CmdShowLayers))
	assert.Equal(t, 1, runner.Count(CmdShowRecipes), "the follow-up cycle ran to completion")
	assert.NotEmpty(t, sc.Snapshot().Layers)
}

func TestRescanProject_SingleRequestRunsOnce(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t)
	require.NoError(t, sc.RescanProject(context.Background()))
	assert.Equal(t, 1, runner.Count(CmdShowLayers))
}

func TestRescanProject_DeepExamine(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t, WithDeepExamine(true))
	gccFile := "/poky/meta/recipes-devtools/gcc/gcc-cross_13.2.bb"
	runner.On(ShowRecipeFileCommand("gcc-cross-x86_64"), 0,
		"=== Matching recipes: ===\ngcc-cross-x86_64:\n  "+gccFile+" (meta)\n")

	require.NoError(t, sc.RescanProject(context.Background()))
	gcc := sc.Snapshot().Recipe("gcc-cross-x86_64")
	require.NotNil(t, gcc)
	assert.Equal(t, gccFile, gcc.Path)
	assert.Zero(t, runner.Count(ShowRecipeFileCommand("busybox")), "located recipes are not examined")
}

func TestRescanProject_ESDKModeOnlyScansWorkspaces(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t, WithESDKMode(true))
	require.NoError(t, sc.RescanProject(context.Background()))

	assert.Equal(t, []string{CmdDevtoolStatus}, runner.Calls())
	snap := sc.Snapshot()
	assert.Empty(t, snap.Recipes)
	assert.Len(t, snap.Workspaces, 1)
}

func TestRescanProject_ParseHook(t *testing.T) {
	t.Parallel()
	var got *project.Snapshot
	sc, _ := newTestScanner(t, WithParseHook(func(_ context.Context, snap *project.Snapshot) error {
		got = snap
		return errors.New("hook failed")
	}))
	var ready int
	sc.Subscribe(func(ev Event) {
		if ev.Kind == ScanReady {
			ready++
		}
	})

	require.NoError(t, sc.RescanProject(context.Background()))
	assert.Same(t, sc.Snapshot(), got)
	assert.Equal(t, 1, ready, "a failing hook does not suppress ScanReady")
}

func TestRescanProject_TranslatesContainerPaths(t *testing.T) {
	t.Parallel()
	runner := drivertest.New().
		On(CmdShowLayers, 0, "layer path priority\n==========\nmeta /work/poky/meta 5\n").
		On(CmdShowRecipes, 0, "").
		On(CmdShowAppends, 0, "").
		On(CmdGetOverrides, 0, "").
		On(CmdDevtoolStatus, 0, "").
		On(pathmap.InodeChainCommand("/work/poky/meta"), 0, "11\n10\n1\n")
	fsys := hostfs.NewMemFS("/home/u/poky/meta/classes/base.bbclass")
	fsys.SetInode("/home/u/poky", 10)
	fsys.SetInode("/home/u", 2)
	paths := pathmap.New(runner, fsys, "/home/u/poky")

	sc := New(runner, fsys, paths)
	require.NoError(t, sc.RescanProject(context.Background()))

	snap := sc.Snapshot()
	require.Len(t, snap.Layers, 1)
	assert.Equal(t, "/home/u/poky/meta", snap.Layers[0].Path)
	require.Len(t, snap.Classes, 1)
	assert.Equal(t, "/home/u/poky/meta/classes/base.bbclass", snap.Classes[0].Path)
	assert.Equal(t, &pathmap.Mapping{ContainerRoot: "/work/poky", HostRoot: "/home/u/poky"}, paths.Mapping())
}

func TestRescanDevtoolWorkspaces(t *testing.T) {
	t.Parallel()
	sc, runner := newTestScanner(t)
	require.NoError(t, sc.RescanProject(context.Background()))
	recipes := sc.Snapshot().Recipes

	var ready []*project.Snapshot
	sc.Subscribe(func(ev Event) {
		if ev.Kind == ScanReady {
			ready = append(ready, ev.Snapshot)
		}
	})

	runner.On(CmdDevtoolStatus, 0, "No recipes currently in your workspace\n")
	require.NoError(t, sc.RescanDevtoolWorkspaces(context.Background()))
	assert.Empty(t, sc.Snapshot().Workspaces)
	assert.Equal(t, recipes, sc.Snapshot().Recipes)

	runner.Fail(CmdDevtoolStatus, 1, "devtool: not initialized")
	err := sc.RescanDevtoolWorkspaces(context.Background())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageWorkspaces, stageErr.Stage)

	require.Len(t, ready, 2, "ScanReady is delivered even when the rescan fails")
	assert.Same(t, ready[0], ready[1])
}

func TestSubscribe_Cancel(t *testing.T) {
	t.Parallel()
	sc, _ := newTestScanner(t)
	calls := 0
	cancel := sc.Subscribe(func(Event) { calls++ })
	require.NoError(t, sc.RescanProject(context.Background()))
	assert.Equal(t, 2, calls)

	cancel()
	require.NoError(t, sc.RescanProject(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestStats(t *testing.T) {
	t.Parallel()
	sc, _ := newTestScanner(t)
	require.NoError(t, sc.RescanProject(context.Background()))
	st := Stats(sc.Snapshot())
	assert.Equal(t, 2, st.Layers)
	assert.Equal(t, 3, st.Recipes)
	assert.Equal(t, 2, st.Appends)
	assert.Equal(t, []string{"gcc-cross-x86_64"}, st.UnlocatedRecipes)
}

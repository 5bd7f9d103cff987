package pathmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/bbls/internal/driver/drivertest"
	"github.com/jward/bbls/internal/hostfs"
)

// containerSetup models a container where /a/b is the host's /x/y:
// container inodes /a/b/c=100, /a/b=20, /a=30; host /x/y/z=99, /x/y=20, /x=40.
func containerSetup(hostFiles ...string) (*drivertest.Fake, *hostfs.MemFS) {
	runner := drivertest.New().On(InodeChainCommand("/a/b/c"), 0, "100\n20\n30\n")
	fsys := hostfs.NewMemFS(hostFiles...)
	fsys.SetInode("/x/y/z", 99)
	fsys.SetInode("/x/y", 20)
	fsys.SetInode("/x", 40)
	return runner, fsys
}

func TestToHost_ReRootsUnderMatchedAncestor(t *testing.T) {
	t.Parallel()
	runner, fsys := containerSetup("/x/y/c")
	r := New(runner, fsys, "/x/y/z")

	got, err := r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/x/y/c", got)
	assert.Equal(t, &Mapping{ContainerRoot: "/a/b", HostRoot: "/x/y"}, r.Mapping())
}

func TestToHost_StripsOneParentSegment(t *testing.T) {
	t.Parallel()
	runner, fsys := containerSetup("/x/y/c", "/x/y/build")
	r := New(runner, fsys, "/x/y/z")

	_, err := r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)

	// /a/build is ../build relative to /a/b: /x/build does not exist on the
	// host, /x/y/build does.
	got, err := r.ToHost(context.Background(), "/a/build")
	require.NoError(t, err)
	assert.Equal(t, "/x/y/build", got)
}

func TestToHost_UnresolvableNotifiesAndReturnsOriginal(t *testing.T) {
	t.Parallel()
	runner, fsys := containerSetup("/x/y/c")
	var notified []string
	r := New(runner, fsys, "/x/y/z", WithNotifier(func(p string) { notified = append(notified, p) }))

	_, err := r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)

	got, err := r.ToHost(context.Background(), "/a/b/missing")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/missing", got)
	assert.Equal(t, []string{"/a/b/missing"}, notified)
}

func TestToHost_NotifierPanicDoesNotFailTranslation(t *testing.T) {
	t.Parallel()
	runner, fsys := containerSetup("/x/y/c")
	r := New(runner, fsys, "/x/y/z", WithNotifier(func(string) { panic("ui gone") }))

	_, err := r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)
	got, err := r.ToHost(context.Background(), "/a/b/other")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/other", got)
}

func TestToHost_ExistingPathMeansNoContainer(t *testing.T) {
	t.Parallel()
	runner := drivertest.New()
	fsys := hostfs.NewMemFS("/home/me/poky/meta/conf/layer.conf")
	r := New(runner, fsys, "/home/me/poky")

	got, err := r.ToHost(context.Background(), "/home/me/poky/meta")
	require.NoError(t, err)
	assert.Equal(t, "/home/me/poky/meta", got)
	assert.Nil(t, r.Mapping())
	assert.Empty(t, runner.Calls(), "no discovery when the path exists on the host")
}

func TestToHost_EmptyPathIsNoOp(t *testing.T) {
	t.Parallel()
	r := New(nil, hostfs.NewMemFS(), "/")
	got, err := r.ToHost(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.ToContainer(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestToHost_NoDriver(t *testing.T) {
	t.Parallel()
	r := New(nil, hostfs.NewMemFS(), "/x/y")
	got, err := r.ToHost(context.Background(), "/a/b/c")
	assert.ErrorIs(t, err, ErrNoDriver)
	assert.Equal(t, "/a/b/c", got)
}

func TestToHost_NoMatchDegradesToIdentity(t *testing.T) {
	t.Parallel()
	runner := drivertest.New().On(InodeChainCommand("/a/b/c"), 0, "100\n200\n300\n")
	fsys := hostfs.NewMemFS()
	fsys.SetInode("/x/y", 1)
	fsys.SetInode("/x", 2)
	r := New(runner, fsys, "/x/y")

	got, err := r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/c", got)
	assert.Nil(t, r.Mapping())

	// Discovery is not repeated within the cycle.
	_, err = r.ToHost(context.Background(), "/a/b/d")
	require.NoError(t, err)
	assert.Equal(t, 1, runner.Count(InodeChainCommand("/a/b/c")))
}

func TestReset_ReDerivesMapping(t *testing.T) {
	t.Parallel()
	runner, fsys := containerSetup("/x/y/c")
	r := New(runner, fsys, "/x/y/z")

	_, err := r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)
	_, err = r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, 1, runner.Count(InodeChainCommand("/a/b/c")), "mapping is stable within a cycle")

	r.Reset()
	assert.Nil(t, r.Mapping())
	_, err = r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)
	assert.Equal(t, 2, runner.Count(InodeChainCommand("/a/b/c")))
}

func TestToContainer_UsesContainerExistence(t *testing.T) {
	t.Parallel()
	runner, fsys := containerSetup("/x/y/c")
	runner.On("test -e /a/b/recipes/foo.bb", 0, "")
	r := New(runner, fsys, "/x/y/z")

	// Without a mapping the path passes through.
	got, err := r.ToContainer(context.Background(), "/x/y/recipes/foo.bb")
	require.NoError(t, err)
	assert.Equal(t, "/x/y/recipes/foo.bb", got)

	_, err = r.ToHost(context.Background(), "/a/b/c")
	require.NoError(t, err)

	got, err = r.ToContainer(context.Background(), "/x/y/recipes/foo.bb")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/recipes/foo.bb", got)
}

func TestFindMapping_FirstMatchFromLeaf(t *testing.T) {
	t.Parallel()
	fsys := hostfs.NewMemFS()
	fsys.SetInode("/x/y", 30)
	fsys.SetInode("/x", 20)

	// Host /x/y matches container /a (index 2) before /x would match /a/b.
	m := FindMapping("/a/b/c", []uint64{100, 20, 30}, "/x/y", fsys, nil)
	require.NotNil(t, m)
	assert.Equal(t, Mapping{ContainerRoot: "/a", HostRoot: "/x/y"}, *m)
}

func TestParseInodes(t *testing.T) {
	t.Parallel()
	out := []byte("1234\nstat: cannot stat 'x'\n  56\n\n789\n")
	assert.Equal(t, []uint64{1234, 56, 789}, ParseInodes(out))
	assert.Empty(t, ParseInodes(nil))
}

func TestInodeChainCommand(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		`f=/work/meta; while [[ $f != / ]]; do stat -c %i $f; f=$(realpath $(dirname "$f")); done;`,
		InodeChainCommand("/work/meta"))
}

package bbls

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/bbls/internal/project"
	"github.com/jward/bbls/internal/store"
)

func openExport(t *testing.T, dbPath string) *store.Store {
	t.Helper()
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExport_WritesSnapshotAndSymbols(t *testing.T) {
	t.Parallel()
	l := newTestLayer(t)
	e := newTestEngine(t, l)
	ctx := context.Background()
	require.NoError(t, e.Rescan(ctx))

	dbPath := filepath.Join(t.TempDir(), "bbls.db")
	stats, err := e.Export(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, &ExportStats{Files: 4, Indexed: 4}, stats)

	s := openExport(t, dbPath)
	snap, err := s.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, e.Snapshot(), snap)

	wd, err := s.Meta(store.MetaWorkingDirectory)
	require.NoError(t, err)
	assert.Equal(t, l.root, wd)
	scannedAt, err := s.Meta(store.MetaScannedAt)
	require.NoError(t, err)
	assert.NotEmpty(t, scannedAt)

	paths, err := s.FilePaths()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{l.recipe, l.bbapp, l.inc, l.class}, paths)

	syms, err := s.SymbolsByName("do_build")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	f, err := s.FileByID(syms[0].FileID)
	require.NoError(t, err)
	assert.Equal(t, l.class, f.Path)
	assert.Equal(t, store.KindClass, f.Kind)

	comments, err := s.CommentsByName("SUMMARY")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, " Shared summary", comments[0].Text)
}

func TestExport_Incremental(t *testing.T) {
	t.Parallel()
	l := newTestLayer(t)
	e := newTestEngine(t, l)
	ctx := context.Background()
	require.NoError(t, e.Rescan(ctx))
	dbPath := filepath.Join(t.TempDir(), "bbls.db")

	_, err := e.Export(ctx, dbPath)
	require.NoError(t, err)

	stats, err := e.Export(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, &ExportStats{Files: 4, Skipped: 4}, stats)

	writeFile(t, l.inc, "SUMMARY = \"changed\"\nHOMEPAGE = \"https://busybox.net\"\n")
	stats, err = e.Export(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, &ExportStats{Files: 4, Indexed: 1, Skipped: 3}, stats)

	s := openExport(t, dbPath)
	summary, err := s.SymbolsByName("SUMMARY")
	require.NoError(t, err)
	assert.Len(t, summary, 1, "the old version of the file is replaced")
	comments, err := s.CommentsByName("SUMMARY")
	require.NoError(t, err)
	assert.Empty(t, comments)
	homepage, err := s.SymbolsByName("HOMEPAGE")
	require.NoError(t, err)
	assert.Len(t, homepage, 1)
}

func TestExport_RemovesStaleAndCountsMissing(t *testing.T) {
	t.Parallel()
	l := newTestLayer(t)
	e := newTestEngine(t, l)
	ctx := context.Background()
	require.NoError(t, e.Rescan(ctx))
	dbPath := filepath.Join(t.TempDir(), "bbls.db")
	_, err := e.Export(ctx, dbPath)
	require.NoError(t, err)

	snap := project.Empty()
	snap.Classes = []project.Element{
		{Name: "base", Path: l.class},
		{Name: "gone", Path: filepath.Join(l.layer, "classes", "gone.bbclass")},
	}
	e.SetSnapshot(snap)

	stats, err := e.Export(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, &ExportStats{Files: 2, Skipped: 1, Missing: 1, Removed: 3}, stats)

	s := openExport(t, dbPath)
	paths, err := s.FilePaths()
	require.NoError(t, err)
	assert.Equal(t, []string{l.class}, paths)
}

func TestExport_BadPath(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, newTestLayer(t))
	_, err := e.Export(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "bbls.db"))
	assert.Error(t, err)
}

func TestSnapshotFiles(t *testing.T) {
	t.Parallel()
	snap := project.Empty()
	snap.Recipes = []project.Element{
		{Name: "b", Path: "/l/b_1.0.bb", Appends: []project.Append{{Path: "/l/b_%.bbappend"}}},
		{Name: "unlocated"},
	}
	snap.Classes = []project.Element{{Name: "a", Path: "/l/a.bbclass"}}
	snap.Includes = []project.Element{{Name: "b", Path: "/l/b_1.0.bb"}}

	assert.Equal(t, []string{"/l/a.bbclass", "/l/b_%.bbappend", "/l/b_1.0.bb"}, snapshotFiles(snap))
}

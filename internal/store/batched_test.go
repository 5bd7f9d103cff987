package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/bbls/internal/document"
)

func TestBatchedStore_SymbolsByFile_ReturnsBufferedSymbols(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore(s)

	fileID, err := batch.InsertFile(&File{Path: "/a.bb", Kind: KindRecipe})
	require.NoError(t, err)
	assert.Negative(t, fileID, "batched IDs should be negative")

	id1, err := batch.InsertSymbol(&Symbol{FileID: fileID, Name: "PV", Kind: "variable"})
	require.NoError(t, err)
	assert.Negative(t, id1)
	_, err = batch.InsertSymbol(&Symbol{FileID: fileID, Name: "do_compile", Kind: "task"})
	require.NoError(t, err)

	syms, err := batch.SymbolsByFile(fileID)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "PV", syms[0].Name)
	assert.Equal(t, "do_compile", syms[1].Name)

	// Nothing reaches SQLite before the commit.
	got, err := s.FileByPath("/a.bb")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBatchedStore_SymbolsByFile_MergesWithDatabase(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/a.bb")
	insertTestSymbol(t, s, f.ID, "Existing", "variable")

	batch := NewBatchedStore(s)
	_, err := batch.InsertSymbol(&Symbol{FileID: f.ID, Name: "New", Kind: "variable"})
	require.NoError(t, err)

	syms, err := batch.SymbolsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "Existing", syms[0].Name)
	assert.Equal(t, "New", syms[1].Name)
}

func TestCommitBatch_RemapsAndReplaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	old := insertTestFile(t, s, "/work/a.bb")
	insertTestSymbol(t, s, old.ID, "STALE", "variable")

	batch := NewBatchedStore(s)
	now := time.Now().Truncate(time.Second)
	docs := []*document.Document{
		document.Parse(document.FileURI("/work/a.bb"), "# doc\nPV = \"1\"\n"),
		document.Parse(document.FileURI("/work/b.inc"), "DEPENDS += \"zlib\"\n"),
	}

	var wg sync.WaitGroup
	for _, doc := range docs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := IndexDocument(batch, doc, now)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, batch.Len())

	require.NoError(t, s.CommitBatch(batch))

	paths, err := s.FilePaths()
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/a.bb", "/work/b.inc"}, paths)

	stale, err := s.SymbolsByName("STALE")
	require.NoError(t, err)
	assert.Empty(t, stale, "a re-indexed file replaces its previous rows")

	a, err := s.FileByPath("/work/a.bb")
	require.NoError(t, err)
	require.NotNil(t, a)
	syms, err := s.SymbolsByFile(a.ID)
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "PV", syms[0].Name)

	comments, err := s.CommentsByName("PV")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, a.ID, comments[0].FileID)

	deps, err := s.SymbolsByName("DEPENDS")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Positive(t, deps[0].FileID)
}

package store

import "sync"

// BatchedStore buffers indexing inserts in memory using fake (negative)
// IDs. It implements DataStore so documents can be indexed by parallel
// workers and committed in one transaction.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// SymbolsByFile passes real IDs through to the underlying Store, which is
// safe for concurrent reads.
type BatchedStore struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	Files    []File
	Symbols  []Symbol
	Comments []Comment

	nextFakeID int64 // starts at -1, decrements
}

// Compile-time check: *BatchedStore satisfies DataStore.
var _ DataStore = (*BatchedStore)(nil)

// NewBatchedStore creates a BatchedStore backed by the given Store for read queries.
func NewBatchedStore(s *Store) *BatchedStore {
	return &BatchedStore{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

func (b *BatchedStore) InsertFile(f *File) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	f.ID = fakeID
	b.Files = append(b.Files, *f)
	return fakeID, nil
}

func (b *BatchedStore) InsertSymbol(sym *Symbol) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	sym.ID = fakeID
	b.Symbols = append(b.Symbols, *sym)
	return fakeID, nil
}

func (b *BatchedStore) InsertComment(c *Comment) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	c.ID = fakeID
	b.Comments = append(b.Comments, *c)
	return fakeID, nil
}

// SymbolsByFile returns the buffered symbols of fileID, merged with the
// committed ones when fileID is real.
func (b *BatchedStore) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	var out []*Symbol
	if fileID > 0 && b.store != nil {
		committed, err := b.store.SymbolsByFile(fileID)
		if err != nil {
			return nil, err
		}
		out = committed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.Symbols {
		if b.Symbols[i].FileID == fileID {
			sym := b.Symbols[i]
			out = append(out, &sym)
		}
	}
	return out, nil
}

// Len returns the number of buffered files.
func (b *BatchedStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Files)
}

package store

// DataStore is the interface for document indexing. Both Store (direct
// SQLite) and BatchedStore (in-memory buffering for parallel indexing)
// implement this interface.
type DataStore interface {
	// Inserts return the assigned ID.
	InsertFile(f *File) (int64, error)
	InsertSymbol(sym *Symbol) (int64, error)
	InsertComment(c *Comment) (int64, error)

	SymbolsByFile(fileID int64) ([]*Symbol, error)
}

// Compile-time check: *Store satisfies DataStore.
var _ DataStore = (*Store)(nil)

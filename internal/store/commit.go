package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) IDs are remapped to real
// IDs. A buffered file whose path is already stored replaces the stored
// file and everything attached to it.
//
// Insert order respects FK dependencies:
//  1. Files
//  2. Symbols (depend on file_id)
//  3. Comments (depend on file_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)
	remap := func(id int64) int64 {
		if id < 0 {
			return fakeToReal[id]
		}
		return id
	}

	// 1. Files
	for _, f := range batch.Files {
		var existing int64
		err := tx.QueryRow("SELECT id FROM files WHERE path = ?", f.Path).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
		default:
			if err := deleteFileTx(tx, existing); err != nil {
				return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
			}
		}
		realID, err := insertFileTx(tx, &f)
		if err != nil {
			return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
		}
		fakeToReal[f.ID] = realID
	}

	// 2. Symbols
	for _, sym := range batch.Symbols {
		sym.FileID = remap(sym.FileID)
		if _, err := insertSymbolTx(tx, &sym); err != nil {
			return fmt.Errorf("commit batch: symbol %q: %w", sym.Name, err)
		}
	}

	// 3. Comments
	for _, c := range batch.Comments {
		c.FileID = remap(c.FileID)
		if _, err := insertCommentTx(tx, &c); err != nil {
			return fmt.Errorf("commit batch: comment %q: %w", c.Name, err)
		}
	}

	return tx.Commit()
}

// --- Transaction-scoped insert helpers ---
// These mirror the Store insert methods but accept *sql.Tx instead of using s.db.

func insertFileTx(tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO files (path, kind, hash, last_indexed) VALUES (?, ?, ?, ?)",
		f.Path, f.Kind, f.Hash, f.LastIndexed,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertSymbolTx(tx *sql.Tx, sym *Symbol) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO symbols (file_id, name, kind, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.Kind, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertCommentTx(tx *sql.Tx, c *Comment) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO comments (file_id, name, text, line) VALUES (?, ?, ?, ?)",
		c.FileID, c.Name, c.Text, c.Line,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

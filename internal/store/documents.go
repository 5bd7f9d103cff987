package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/project"
)

// KindOf returns the file kind for a BitBake source path.
func KindOf(path string) string {
	switch filepath.Ext(path) {
	case project.ExtRecipe:
		return KindRecipe
	case project.ExtAppend:
		return KindAppend
	case project.ExtClass:
		return KindClass
	case project.ExtInclude:
		return KindInclude
	}
	return KindConf
}

// IndexDocument writes a parsed document, its declarations and their comment
// blocks to ds. It returns the file ID (fake for a BatchedStore).
func IndexDocument(ds DataStore, doc *document.Document, indexedAt time.Time) (int64, error) {
	path := doc.Path()
	f := &File{Path: path, Kind: KindOf(path), Hash: ContentHash(doc.Text), LastIndexed: indexedAt}
	fileID, err := ds.InsertFile(f)
	if err != nil {
		return 0, err
	}
	for _, sym := range doc.Index.Symbols {
		_, err := ds.InsertSymbol(&Symbol{
			FileID:    fileID,
			Name:      sym.Name,
			Kind:      sym.Kind.String(),
			StartLine: sym.Range.Start.Line,
			StartCol:  sym.Range.Start.Col,
			EndLine:   sym.Range.End.Line,
			EndCol:    sym.Range.End.Col,
		})
		if err != nil {
			return 0, err
		}
	}
	for _, c := range doc.Index.Comments {
		if _, err := ds.InsertComment(&Comment{FileID: fileID, Name: c.Name, Text: c.Text, Line: c.Line}); err != nil {
			return 0, err
		}
	}
	return fileID, nil
}

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, kind, hash, last_indexed) VALUES (?, ?, ?, ?)",
		f.Path, f.Kind, f.Hash, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT id, path, kind, hash, last_indexed FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Kind, &f.Hash, &f.LastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) FileByID(id int64) (*File, error) {
	f := &File{}
	err := s.db.QueryRow(
		"SELECT id, path, kind, hash, last_indexed FROM files WHERE id = ?", id,
	).Scan(&f.ID, &f.Path, &f.Kind, &f.Hash, &f.LastIndexed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by id: %w", err)
	}
	return f, nil
}

func (s *Store) FilesByKind(kind string) ([]*File, error) {
	rows, err := s.db.Query(
		"SELECT id, path, kind, hash, last_indexed FROM files WHERE kind = ? ORDER BY path", kind,
	)
	if err != nil {
		return nil, fmt.Errorf("files by kind: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		if err := rows.Scan(&f.ID, &f.Path, &f.Kind, &f.Hash, &f.LastIndexed); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Symbol operations ---

func (s *Store) InsertSymbol(sym *Symbol) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO symbols (file_id, name, kind, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sym.FileID, sym.Name, sym.Kind, sym.StartLine, sym.StartCol, sym.EndLine, sym.EndCol,
	)
	if err != nil {
		return 0, fmt.Errorf("insert symbol: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	sym.ID = id
	return id, nil
}

// SymbolCols is the column list for symbol queries.
const SymbolCols = `id, file_id, name, kind, start_line, start_col, end_line, end_col`

func scanSymbol(scanner interface{ Scan(...any) error }) (*Symbol, error) {
	sym := &Symbol{}
	err := scanner.Scan(
		&sym.ID, &sym.FileID, &sym.Name, &sym.Kind,
		&sym.StartLine, &sym.StartCol, &sym.EndLine, &sym.EndCol,
	)
	if err != nil {
		return nil, err
	}
	return sym, nil
}

func (s *Store) querySymbols(query string, args ...any) ([]*Symbol, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var symbols []*Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) SymbolsByFile(fileID int64) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE file_id = ? ORDER BY id", fileID)
}

func (s *Store) SymbolsByName(name string) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE name = ? ORDER BY file_id, id", name)
}

func (s *Store) SymbolsByKind(kind string) ([]*Symbol, error) {
	return s.querySymbols("SELECT "+SymbolCols+" FROM symbols WHERE kind = ? ORDER BY file_id, id", kind)
}

// --- Comment operations ---

func (s *Store) InsertComment(c *Comment) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO comments (file_id, name, text, line) VALUES (?, ?, ?, ?)",
		c.FileID, c.Name, c.Text, c.Line,
	)
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	return id, nil
}

func (s *Store) CommentsByName(name string) ([]*Comment, error) {
	rows, err := s.db.Query(
		"SELECT id, file_id, name, text, line FROM comments WHERE name = ? ORDER BY file_id, id", name,
	)
	if err != nil {
		return nil, fmt.Errorf("comments by name: %w", err)
	}
	defer rows.Close()
	var comments []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.FileID, &c.Name, &c.Text, &c.Line); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// FilePaths returns the path of every indexed file, sorted.
func (s *Store) FilePaths() ([]string, error) {
	paths, err := s.queryStrings("SELECT path FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("file paths: %w", err)
	}
	return paths, nil
}

// DeleteFiles removes the given files and their symbols and comments.
func (s *Store) DeleteFiles(paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	in := "(SELECT id FROM files WHERE path IN (" + placeholderList(len(paths)) + "))"
	args := stringsToArgs(paths)
	for _, q := range []string{
		"DELETE FROM comments WHERE file_id IN " + in,
		"DELETE FROM symbols WHERE file_id IN " + in,
		"DELETE FROM files WHERE path IN (" + placeholderList(len(paths)) + ")",
	} {
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
	}
	return tx.Commit()
}

// FileHashes maps every indexed path to its content hash.
func (s *Store) FileHashes() (map[string]string, error) {
	rows, err := s.db.Query("SELECT path, hash FROM files")
	if err != nil {
		return nil, fmt.Errorf("file hashes: %w", err)
	}
	defer rows.Close()
	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan file hash: %w", err)
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

package store

import "time"

// Metadata keys written by the exporter.
const (
	MetaWorkingDirectory = "working_directory"
	MetaScannedAt        = "scanned_at"
)

// File kinds, derived from the file extension.
const (
	KindRecipe  = "recipe"
	KindAppend  = "append"
	KindClass   = "class"
	KindInclude = "include"
	KindConf    = "conf"
)

type File struct {
	ID          int64
	Path        string
	Kind        string
	Hash        string
	LastIndexed time.Time
}

// Symbol is a declaration: a variable assignment, a function or a task.
type Symbol struct {
	ID        int64
	FileID    int64
	Name      string
	Kind      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// Comment is a comment block attached to the declaration below it. Line is
// 1-based.
type Comment struct {
	ID     int64
	FileID int64
	Name   string
	Text   string
	Line   int
}

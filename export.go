package bbls

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/store"
)

// ExportStats counts what an Export did with each known file.
type ExportStats struct {
	Files   int `json:"files"`
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Missing int `json:"missing"`
	Removed int `json:"removed"`
}

// Export writes the current snapshot and the declarations of every recipe,
// append, class and include file it names to the SQLite database at dbPath.
//
// The export runs in three phases:
//
//	Phase A (serial):   Replace the snapshot tables, drop files no longer known.
//	Phase B (parallel): Read, hash and parse files into a BatchedStore.
//	Phase C (serial):   Commit the batch to SQLite.
//
// Files whose content hash matches the previous export are skipped. Files
// that cannot be read are counted as missing and left out.
func (e *Engine) Export(ctx context.Context, dbPath string) (*ExportStats, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("bbls: create store: %w", err)
	}
	defer s.Close()
	if err := s.Migrate(); err != nil {
		return nil, fmt.Errorf("bbls: migrate: %w", err)
	}

	// ---- Phase A ----
	snap := e.Snapshot()
	if err := s.ReplaceSnapshot(snap); err != nil {
		return nil, fmt.Errorf("bbls: export snapshot: %w", err)
	}
	now := time.Now()
	if err := s.SetMeta(store.MetaWorkingDirectory, e.cfg.BitBake.WorkingDirectory); err != nil {
		return nil, fmt.Errorf("bbls: %w", err)
	}
	if err := s.SetMeta(store.MetaScannedAt, now.UTC().Format(time.RFC3339)); err != nil {
		return nil, fmt.Errorf("bbls: %w", err)
	}

	paths := snapshotFiles(snap)
	previous, err := s.FileHashes()
	if err != nil {
		return nil, fmt.Errorf("bbls: %w", err)
	}
	known := make(map[string]bool, len(paths))
	for _, p := range paths {
		known[p] = true
	}
	var stale []string
	for p := range previous {
		if !known[p] {
			stale = append(stale, p)
		}
	}
	sort.Strings(stale)
	if err := s.DeleteFiles(stale); err != nil {
		return nil, fmt.Errorf("bbls: %w", err)
	}

	// ---- Phase B ----
	batch := store.NewBatchedStore(s)
	var indexed, skipped, missing atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, err := os.ReadFile(path)
			if err != nil {
				e.log.Debug("export: skipping unreadable file", "path", path, "error", err)
				missing.Add(1)
				return nil
			}
			text := string(content)
			if h, ok := previous[path]; ok && h == store.ContentHash(text) {
				skipped.Add(1)
				return nil
			}
			doc := document.Parse(document.FileURI(path), text)
			if _, err := store.IndexDocument(batch, doc, now); err != nil {
				return fmt.Errorf("index %s: %w", path, err)
			}
			indexed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bbls: export: %w", err)
	}

	// ---- Phase C ----
	if err := s.CommitBatch(batch); err != nil {
		return nil, fmt.Errorf("bbls: commit: %w", err)
	}

	stats := &ExportStats{
		Files:   len(paths),
		Indexed: int(indexed.Load()),
		Skipped: int(skipped.Load()),
		Missing: int(missing.Load()),
		Removed: len(stale),
	}
	e.log.Info("export complete",
		"db", dbPath,
		"files", stats.Files,
		"indexed", stats.Indexed,
		"skipped", stats.Skipped,
		"missing", stats.Missing,
		"removed", stats.Removed,
	)
	return stats, nil
}

// snapshotFiles lists every located file of snap, sorted and deduplicated.
func snapshotFiles(snap *Snapshot) []string {
	seen := map[string]bool{}
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, r := range snap.Recipes {
		add(r.Path)
		for _, a := range r.Appends {
			add(a.Path)
		}
	}
	for _, c := range snap.Classes {
		add(c.Path)
	}
	for _, i := range snap.Includes {
		add(i.Path)
	}
	sort.Strings(paths)
	return paths
}

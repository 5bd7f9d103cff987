package bbls

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/jward/bbls/internal/config"
	"github.com/jward/bbls/internal/docs"
	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/driver"
	"github.com/jward/bbls/internal/hostfs"
	"github.com/jward/bbls/internal/pathmap"
	"github.com/jward/bbls/internal/project"
	"github.com/jward/bbls/internal/resolve"
	"github.com/jward/bbls/internal/runtime"
	"github.com/jward/bbls/internal/scanner"
	"github.com/jward/bbls/scripts"
)

// Engine ties the scanner, the open documents and the documentation catalog
// together. It is safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	runner    driver.Runner
	fs        hostfs.FS
	log       *slog.Logger
	notify    func(path string)
	scriptsFS fs.FS

	paths   *pathmap.Reconciler
	scanner *scanner.Scanner
	docs    *document.Set

	mu      sync.RWMutex
	catalog *docs.Catalog
}

// Option configures an Engine.
type Option func(*Engine)

// WithRunner sets the command runner. Without it the Engine builds a shell
// runner from the configuration; when the configuration has no usable build
// environment, rescans fail with ErrNoDriver.
func WithRunner(r driver.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithFS sets the host filesystem used for layer walks and path checks.
func WithFS(fsys hostfs.FS) Option {
	return func(e *Engine) { e.fs = fsys }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithNotifier sets the callback invoked with paths that could not be
// translated between the build container and the host.
func WithNotifier(fn func(path string)) Option {
	return func(e *Engine) { e.notify = fn }
}

// WithScriptsFS replaces the embedded hook scripts used when the parse hook
// is set to "default".
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) { e.scriptsFS = fsys }
}

// ErrNoDriver is returned by rescans when no command runner is available.
var ErrNoDriver = scanner.ErrNoDriver

// New creates an Engine for cfg. A nil cfg means config.Default().
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Engine{
		cfg:       cfg,
		fs:        hostfs.OS{},
		log:       slog.Default(),
		scriptsFS: scripts.FS,
		docs:      document.NewSet(),
		catalog:   docs.NewCatalog(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.runner == nil {
		if err := cfg.Validate(); err != nil {
			e.log.Warn("bitbake driver disabled", "error", err)
		} else {
			e.runner = driver.NewShell(cfg.Driver())
		}
	}

	if cfg.Docs.Dir != "" {
		if err := e.LoadDocs(docs.TOMLSource{Dir: cfg.Docs.Dir}, docs.Kinds()...); err != nil {
			return nil, fmt.Errorf("bbls: %w", err)
		}
	}

	pathOpts := []pathmap.Option{pathmap.WithLogger(e.log)}
	if e.notify != nil {
		pathOpts = append(pathOpts, pathmap.WithNotifier(e.notify))
	}
	e.paths = pathmap.New(e.runner, e.fs, cfg.BitBake.WorkingDirectory, pathOpts...)

	scanOpts := []scanner.Option{
		scanner.WithLogger(e.log),
		scanner.WithDeepExamine(cfg.Scan.DeepExamine),
		scanner.WithESDKMode(cfg.Scan.ESDKMode),
	}
	if hook := e.parseHook(); hook != nil {
		scanOpts = append(scanOpts, scanner.WithParseHook(hook))
	}
	e.scanner = scanner.New(e.runner, e.fs, e.paths, scanOpts...)
	return e, nil
}

// parseHook builds the Risor hook configured in scan.parse_hook.
func (e *Engine) parseHook() scanner.ParseHook {
	hook := e.cfg.Scan.ParseHook
	switch hook {
	case "":
		return nil
	case config.DefaultHook:
		rt := runtime.NewRuntime(nil, "", runtime.WithRuntimeFS(e.scriptsFS), runtime.WithLogger(e.log))
		return rt.ParseHook(scripts.ParseHook, e.Reindex)
	}
	rt := runtime.NewRuntime(nil, filepath.Dir(hook), runtime.WithLogger(e.log))
	return rt.ParseHook(hook, e.Reindex)
}

// Config returns the configuration the Engine was created with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Rescan runs a full scan cycle. Overlapping calls are coalesced into one
// follow-up cycle. Stage failures are logged and keep the previous snapshot.
func (e *Engine) Rescan(ctx context.Context) error {
	return e.scanner.RescanProject(ctx)
}

// RescanWorkspaces refreshes only the devtool workspaces of the snapshot.
func (e *Engine) RescanWorkspaces(ctx context.Context) error {
	return e.scanner.RescanDevtoolWorkspaces(ctx)
}

// Subscribe registers fn for scan-started and scan-ready events.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) {
	return e.scanner.Subscribe(fn)
}

// Snapshot returns the current project snapshot. It is never nil.
func (e *Engine) Snapshot() *Snapshot {
	return e.scanner.Snapshot()
}

// SetSnapshot publishes snap as the current snapshot, for example one loaded
// from an export.
func (e *Engine) SetSnapshot(snap *Snapshot) {
	if snap == nil {
		snap = project.Empty()
	}
	e.scanner.State().Publish(snap)
}

// Scanning reports whether a scan cycle is running.
func (e *Engine) Scanning() bool {
	running, _ := e.scanner.State().Running()
	return running
}

// Kill aborts every running bitbake command.
func (e *Engine) Kill() {
	if k, ok := e.runner.(interface{ Kill() }); ok {
		k.Kill()
	}
}

// ToHost translates a path reported by bitbake to the host filesystem.
func (e *Engine) ToHost(ctx context.Context, path string) (string, error) {
	return e.paths.ToHost(ctx, path)
}

// ToContainer translates a host path to the build container.
func (e *Engine) ToContainer(ctx context.Context, path string) (string, error) {
	return e.paths.ToContainer(ctx, path)
}

// --- Documents ---

// Open parses text and makes it the current version of uri.
func (e *Engine) Open(uri, text string) *Document {
	return e.docs.Open(uri, text)
}

// OpenFile reads and opens the file at path, then loads every class and
// include file its directives pull in, transitively. Directive targets that
// cannot be read are logged and skipped.
func (e *Engine) OpenFile(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("bbls: open %s: %w", path, err)
	}
	text, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("bbls: open %s: %w", path, err)
	}
	doc := e.docs.Open(document.FileURI(abs), string(text))
	e.loadScope(doc.URI)
	return doc, nil
}

// loadScope opens the unloaded directive targets reachable from uri until
// the scope chain is complete.
func (e *Engine) loadScope(uri string) {
	failed := map[string]bool{}
	for {
		r := resolve.New(e.docs.View(), e.Snapshot(), nil)
		loaded := 0
		for _, path := range r.Unloaded(uri) {
			if failed[path] {
				continue
			}
			text, err := os.ReadFile(path)
			if err != nil {
				e.log.Debug("skipping directive target", "path", path, "error", err)
				failed[path] = true
				continue
			}
			e.docs.Open(document.FileURI(path), string(text))
			loaded++
		}
		if loaded == 0 {
			return
		}
	}
}

// CloseDocument drops the document for uri.
func (e *Engine) CloseDocument(uri string) {
	e.docs.Close(uri)
}

// Document returns the open document for uri, or nil.
func (e *Engine) Document(uri string) *Document {
	return e.docs.Get(uri)
}

// Documents returns the URIs of all open documents, sorted.
func (e *Engine) Documents() []string {
	return e.docs.URIs()
}

// Reindex re-reads path when it is open. Files that are not open are
// ignored.
func (e *Engine) Reindex(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	uri := document.FileURI(path)
	if e.docs.Get(uri) == nil {
		return nil
	}
	text, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("bbls: reindex %s: %w", path, err)
	}
	e.docs.Open(uri, string(text))
	e.log.Debug("reindexed document", "path", path)
	return nil
}

// --- Documentation ---

// LoadDocs applies documentation kinds from src in order. A later kind
// replaces the entries an earlier one defined for the same name.
func (e *Engine) LoadDocs(src docs.Source, kinds ...docs.Kind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, err := docs.Load(e.catalog, src, kinds...)
	if err != nil {
		return err
	}
	e.catalog = c
	return nil
}

func (e *Engine) docCatalog() *docs.Catalog {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.catalog
}

// Query returns a QueryBuilder over the current snapshot, open documents and
// documentation. Later changes to the Engine do not affect it.
func (e *Engine) Query() *QueryBuilder {
	view := e.docs.View()
	snap := e.Snapshot()
	return &QueryBuilder{
		docs:     view,
		snap:     snap,
		resolver: resolve.New(view, snap, e.docCatalog()),
	}
}

// Package scanner discovers the structure of a BitBake project by running
// bitbake-layers, bitbake-getvar and devtool in the build environment and
// walking the layer directories on the host.
//
// A cycle runs the stages in order: layers, classes and include files,
// recipes and their files, append files, overrides, devtool workspaces. The
// result is published as one immutable project.Snapshot. A failing stage
// aborts the cycle and the previously published snapshot stays current.
package scanner

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jward/bbls/internal/driver"
	"github.com/jward/bbls/internal/hostfs"
	"github.com/jward/bbls/internal/pathmap"
	"github.com/jward/bbls/internal/project"
)

// ErrNoDriver is returned by rescans when no command runner is configured.
var ErrNoDriver = pathmap.ErrNoDriver

// Commands run in the build environment.
const (
	CmdShowLayers    = "bitbake-layers show-layers"
	CmdShowRecipes   = "bitbake-layers show-recipes"
	CmdShowAppends   = "bitbake-layers show-appends"
	CmdGetOverrides  = "bitbake-getvar OVERRIDES"
	CmdDevtoolStatus = "devtool status"
)

// ShowRecipeFileCommand asks bitbake-layers for the file of one recipe.
func ShowRecipeFileCommand(name string) string {
	return CmdShowRecipes + " -f " + driver.Quote(name)
}

type EventKind int

const (
	ScanStarted EventKind = iota
	ScanReady
)

func (k EventKind) String() string {
	switch k {
	case ScanStarted:
		return "scan-started"
	case ScanReady:
		return "scan-ready"
	}
	return "unknown"
}

// Event is delivered to subscribers. Snapshot is set for ScanReady and is the
// current snapshot, which is the previous one when the cycle failed.
type Event struct {
	Kind     EventKind
	Snapshot *project.Snapshot
}

// ParseHook runs after a successful cycle, before ScanReady is delivered.
type ParseHook func(ctx context.Context, snap *project.Snapshot) error

// Scanner runs scan cycles. It is safe for concurrent use.
type Scanner struct {
	runner      driver.Runner
	fs          hostfs.FS
	paths       *pathmap.Reconciler
	state       *State
	log         *slog.Logger
	deepExamine bool
	esdkMode    bool
	hook        ParseHook

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Event)
}

// Option configures a Scanner.
type Option func(*Scanner)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.log = l }
}

// WithDeepExamine enables the per-recipe `show-recipes -f` lookup for recipes
// whose file was not found by the layer walk.
func WithDeepExamine(on bool) Option {
	return func(s *Scanner) { s.deepExamine = on }
}

// WithESDKMode restricts full scans to devtool workspace discovery. The parse
// hook does not run in this mode.
func WithESDKMode(on bool) Option {
	return func(s *Scanner) { s.esdkMode = on }
}

func WithParseHook(h ParseHook) Option {
	return func(s *Scanner) { s.hook = h }
}

// WithState makes the scanner publish into an existing State.
func WithState(st *State) Option {
	return func(s *Scanner) { s.state = st }
}

// New creates a Scanner. runner may be nil; rescans then fail with
// ErrNoDriver. paths may be nil, in which case a reconciler rooted at the
// current directory is used.
func New(runner driver.Runner, fsys hostfs.FS, paths *pathmap.Reconciler, opts ...Option) *Scanner {
	s := &Scanner{
		runner: runner,
		fs:     fsys,
		paths:  paths,
		log:    slog.Default(),
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.state == nil {
		s.state = NewState()
	}
	if s.paths == nil {
		s.paths = pathmap.New(runner, fsys, ".", pathmap.WithLogger(s.log))
	}
	return s
}

// Snapshot returns the last published snapshot.
func (s *Scanner) Snapshot() *project.Snapshot { return s.state.Snapshot() }

// State exposes the scanner's state.
func (s *Scanner) State() *State { return s.state }

// Paths exposes the path reconciler used by the scanner.
func (s *Scanner) Paths() *pathmap.Reconciler { return s.paths }

// Subscribe registers fn for scan events and returns a function that removes
// it. fn is called synchronously from the scanning goroutine and must not
// block.
func (s *Scanner) Subscribe(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Scanner) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for id := 1; id <= s.nextID; id++ {
		if fn, ok := s.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// RescanProject runs a full scan cycle. When a cycle is already running the
// request is recorded and RescanProject returns immediately; the running
// loop performs one more cycle after the current one. The follow-up cycle
// serves later callers, so it keeps running when ctx is cancelled; Kill
// still aborts it. Stage failures are logged and do not surface here.
func (s *Scanner) RescanProject(ctx context.Context) error {
	if s.runner == nil {
		return ErrNoDriver
	}
	s.log.Info("rescan requested")
	if !s.state.Begin() {
		s.log.Info("scan already running, marked pending")
		return nil
	}
	s.cycle(ctx)
	for s.state.Finish() {
		s.log.Info("running pending rescan")
		s.cycle(context.WithoutCancel(ctx))
	}
	return nil
}

func (s *Scanner) cycle(ctx context.Context) {
	s.emit(Event{Kind: ScanStarted})

	snap, err := s.scan(ctx)
	if err != nil {
		s.log.Error("project scan aborted", "error", err)
		s.emit(Event{Kind: ScanReady, Snapshot: s.state.Snapshot()})
		return
	}
	s.state.Publish(snap)
	s.logStatistics(snap)

	if s.hook != nil && !s.esdkMode {
		if err := s.hook(ctx, snap); err != nil {
			s.log.Warn("parse hook failed", "error", err)
		}
	}
	s.emit(Event{Kind: ScanReady, Snapshot: snap})
}

// RescanDevtoolWorkspaces refreshes only the workspace list of the current
// snapshot. ScanReady is always delivered; the returned error is the stage
// failure, if any.
func (s *Scanner) RescanDevtoolWorkspaces(ctx context.Context) error {
	if s.runner == nil {
		return ErrNoDriver
	}
	ws, err := s.discoverWorkspaces(ctx)
	if err != nil {
		s.log.Error("devtool workspace rescan failed", "error", err)
	} else {
		s.state.Update(func(cur *project.Snapshot) *project.Snapshot {
			return cur.WithWorkspaces(ws)
		})
	}
	s.emit(Event{Kind: ScanReady, Snapshot: s.state.Snapshot()})
	return err
}

func (s *Scanner) scan(ctx context.Context) (*project.Snapshot, error) {
	if s.esdkMode {
		ws, err := s.discoverWorkspaces(ctx)
		if err != nil {
			return nil, err
		}
		return s.state.Snapshot().WithWorkspaces(ws), nil
	}

	s.paths.Reset()
	snap := project.Empty()

	layers, err := s.discoverLayers(ctx)
	if err != nil {
		return nil, err
	}
	snap.Layers = layers

	if snap.Classes, err = s.discoverFiles(ctx, layers, project.ExtClass); err != nil {
		return nil, err
	}
	if snap.Includes, err = s.discoverFiles(ctx, layers, project.ExtInclude); err != nil {
		return nil, err
	}
	if snap.Recipes, err = s.discoverRecipes(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.discoverAppends(ctx, snap.Recipes); err != nil {
		return nil, err
	}
	if snap.Overrides, err = s.discoverOverrides(ctx); err != nil {
		return nil, err
	}
	if snap.Workspaces, err = s.discoverWorkspaces(ctx); err != nil {
		return nil, err
	}
	return snap, nil
}

// run executes command and converts failures into a StageError.
func (s *Scanner) run(ctx context.Context, stage Stage, command string) (string, error) {
	res, err := s.runner.Run(ctx, command)
	if err != nil {
		return "", &StageError{Stage: stage, Err: err}
	}
	if res.Status != 0 {
		return "", &StageError{Stage: stage, Status: res.Status, Stderr: string(res.Stderr)}
	}
	return string(res.Stdout), nil
}

func (s *Scanner) discoverLayers(ctx context.Context) ([]project.Layer, error) {
	out, err := s.run(ctx, StageLayers, CmdShowLayers)
	if err != nil {
		return nil, err
	}
	layers := []project.Layer{}
	for _, row := range ParseLayers(out) {
		path, err := s.paths.ToHost(ctx, row.Path)
		if err != nil {
			return nil, &StageError{Stage: StageLayers, Err: err}
		}
		layers = append(layers, project.Layer{Name: row.Name, Path: path, Priority: row.Priority})
	}
	return layers, nil
}

// discoverFiles walks every layer concurrently for files ending in ext. The
// result is ordered by layer, then by path within a layer. A layer that cannot
// be walked is logged and contributes nothing.
func (s *Scanner) discoverFiles(ctx context.Context, layers []project.Layer, ext string) ([]project.Element, error) {
	perLayer := make([][]project.Element, len(layers))
	g, gctx := errgroup.WithContext(ctx)
	for i, layer := range layers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			files, err := s.fs.Find(layer.Path, ext)
			if err != nil {
				s.log.Warn("walking layer failed", "layer", layer.Name, "path", layer.Path, "error", err)
				return nil
			}
			owner := layer
			elems := make([]project.Element, 0, len(files))
			for _, f := range files {
				elems = append(elems, project.Element{Name: project.Stem(f), Path: f, Layer: &owner})
			}
			perLayer[i] = elems
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []project.Element{}
	for _, elems := range perLayer {
		all = append(all, elems...)
	}
	return all, nil
}

func (s *Scanner) discoverRecipes(ctx context.Context, snap *project.Snapshot) ([]project.Element, error) {
	out, err := s.run(ctx, StageRecipes, CmdShowRecipes)
	if err != nil {
		return nil, err
	}
	groups := ParseRecipes(out)
	recipes := make([]project.Element, 0, len(groups))
	for _, g := range groups {
		preferred := g.Providers[0]
		r := project.Element{Name: g.Name, Version: preferred.Version, Providers: g.Providers}
		if l := snap.Layer(preferred.Layer); l != nil {
			owner := *l
			r.Layer = &owner
		}
		recipes = append(recipes, r)
	}

	files, err := s.discoverFiles(ctx, snap.Layers, project.ExtRecipe)
	if err != nil {
		return nil, err
	}
	AssignRecipePaths(recipes, files)

	if s.deepExamine {
		s.examineUnlocated(ctx, recipes)
	}
	return recipes, nil
}

// AssignRecipePaths sets the Path of each recipe from the discovered .bb
// files. The recipe name is the part of the file name before the first
// underscore. A file whose version token equals the recipe's version wins
// regardless of walk order; otherwise the first file found is kept.
func AssignRecipePaths(recipes []project.Element, files []project.Element) {
	index := recipeIndex(recipes)
	for _, f := range files {
		name, version := project.SplitVersioned(f.Path)
		i, ok := index[name]
		if !ok {
			continue
		}
		r := &recipes[i]
		if r.Path == "" {
			r.Path = f.Path
			continue
		}
		if _, current := project.SplitVersioned(r.Path); current != r.Version && version == r.Version {
			r.Path = f.Path
		}
	}
}

func recipeIndex(recipes []project.Element) map[string]int {
	index := make(map[string]int, len(recipes))
	for i, r := range recipes {
		if _, dup := index[r.Name]; !dup {
			index[r.Name] = i
		}
	}
	return index
}

// examineUnlocated asks bitbake-layers for the file of each recipe the layer
// walk did not locate. Failures are logged per recipe.
func (s *Scanner) examineUnlocated(ctx context.Context, recipes []project.Element) {
	for i := range recipes {
		r := &recipes[i]
		if r.Path != "" {
			continue
		}
		res, err := s.runner.Run(ctx, ShowRecipeFileCommand(r.Name))
		if err != nil || res.Status != 0 {
			s.log.Warn("deep examine failed", "recipe", r.Name, "error", err)
			continue
		}
		paths := ParseRecipePaths(string(res.Stdout))
		if len(paths) == 0 {
			continue
		}
		path, err := s.paths.ToHost(ctx, paths[len(paths)-1])
		if err != nil {
			s.log.Warn("deep examine failed", "recipe", r.Name, "error", err)
			continue
		}
		r.Path = path
	}
}

// discoverAppends attaches append files to recipes. An append is kept only
// when its version token matches the recipe's version; appends for recipes
// missing from the recipe list are dropped.
func (s *Scanner) discoverAppends(ctx context.Context, recipes []project.Element) error {
	out, err := s.run(ctx, StageAppends, CmdShowAppends)
	if err != nil {
		return err
	}
	index := recipeIndex(recipes)
	for _, g := range ParseAppends(out) {
		name, _ := project.SplitVersioned(g.RecipeFile)
		i, ok := index[name]
		if !ok {
			s.log.Debug("append group for unknown recipe", "recipe", name)
			continue
		}
		r := &recipes[i]
		for _, a := range g.Appends {
			_, version := project.SplitVersioned(a)
			if !project.VersionMatches(version, r.Version) {
				continue
			}
			path, err := s.paths.ToHost(ctx, a)
			if err != nil {
				return &StageError{Stage: StageAppends, Err: err}
			}
			if hasAppend(r.Appends, path) {
				continue
			}
			r.Appends = append(r.Appends, project.Append{Path: path, Version: version})
		}
	}
	return nil
}

func hasAppend(appends []project.Append, path string) bool {
	for _, a := range appends {
		if a.Path == path {
			return true
		}
	}
	return false
}

func (s *Scanner) discoverOverrides(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, StageOverrides, CmdGetOverrides)
	if err != nil {
		return nil, err
	}
	return ParseOverrides(out), nil
}

func (s *Scanner) discoverWorkspaces(ctx context.Context) ([]project.Workspace, error) {
	out, err := s.run(ctx, StageWorkspaces, CmdDevtoolStatus)
	if err != nil {
		return nil, err
	}
	ws := ParseWorkspaces(out)
	for i := range ws {
		path, err := s.paths.ToHost(ctx, ws[i].Path)
		if err != nil {
			return nil, &StageError{Stage: StageWorkspaces, Err: err}
		}
		ws[i].Path = path
	}
	return ws, nil
}

// Statistics summarizes a snapshot.
type Statistics struct {
	Layers           int
	Recipes          int
	Classes          int
	Includes         int
	Appends          int
	Overrides        int
	Workspaces       int
	UnlocatedRecipes []string
}

func Stats(snap *project.Snapshot) Statistics {
	st := Statistics{
		Layers:     len(snap.Layers),
		Recipes:    len(snap.Recipes),
		Classes:    len(snap.Classes),
		Includes:   len(snap.Includes),
		Overrides:  len(snap.Overrides),
		Workspaces: len(snap.Workspaces),
	}
	for _, r := range snap.Recipes {
		st.Appends += len(r.Appends)
		if r.Path == "" {
			st.UnlocatedRecipes = append(st.UnlocatedRecipes, r.Name)
		}
	}
	return st
}

func (s *Scanner) logStatistics(snap *project.Snapshot) {
	st := Stats(snap)
	s.log.Info("project scan complete",
		"layers", st.Layers, "recipes", st.Recipes, "classes", st.Classes,
		"includes", st.Includes, "appends", st.Appends,
		"overrides", st.Overrides, "workspaces", st.Workspaces)
	if len(st.UnlocatedRecipes) > 0 {
		s.log.Debug("recipes without a file", "count", len(st.UnlocatedRecipes),
			"recipes", strings.Join(st.UnlocatedRecipes, " "))
	}
}

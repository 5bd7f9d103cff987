package runtime

import (
	"context"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/bbls/internal/project"
)

// ReindexFunc re-reads the file at path and refreshes everything derived
// from it.
type ReindexFunc func(ctx context.Context, path string) error

// makeReindexFn creates the "reindex" host function.
//
// reindex(path) → nil, or an error value when the file could not be read.
func makeReindexFn(fn ReindexFunc) *object.Builtin {
	return object.NewBuiltin("reindex", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("reindex", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("reindex: %v", err)
		}
		if fn == nil {
			return object.Nil
		}
		if err := fn(ctx, path); err != nil {
			return object.Errorf("reindex: %v", err)
		}
		return object.Nil
	})
}

// snapshotGlobals exposes a snapshot as Risor lists of maps.
func snapshotGlobals(snap *project.Snapshot) map[string]any {
	if snap == nil {
		snap = project.Empty()
	}
	layers := make([]object.Object, 0, len(snap.Layers))
	for _, l := range snap.Layers {
		layers = append(layers, layerToMap(l))
	}
	overrides := make([]object.Object, 0, len(snap.Overrides))
	for _, o := range snap.Overrides {
		overrides = append(overrides, object.NewString(o))
	}
	workspaces := make([]object.Object, 0, len(snap.Workspaces))
	for _, w := range snap.Workspaces {
		workspaces = append(workspaces, object.NewMap(map[string]object.Object{
			"name": object.NewString(w.Name),
			"path": object.NewString(w.Path),
		}))
	}
	return map[string]any{
		"recipes":    elementsToList(snap.Recipes),
		"classes":    elementsToList(snap.Classes),
		"includes":   elementsToList(snap.Includes),
		"layers":     object.NewList(layers),
		"overrides":  object.NewList(overrides),
		"workspaces": object.NewList(workspaces),
	}
}

func layerToMap(l project.Layer) object.Object {
	return object.NewMap(map[string]object.Object{
		"name":     object.NewString(l.Name),
		"path":     object.NewString(l.Path),
		"priority": object.NewInt(int64(l.Priority)),
	})
}

func elementsToList(elems []project.Element) *object.List {
	items := make([]object.Object, 0, len(elems))
	for _, e := range elems {
		appends := make([]object.Object, 0, len(e.Appends))
		for _, a := range e.Appends {
			appends = append(appends, object.NewString(a.Path))
		}
		m := map[string]object.Object{
			"name":    object.NewString(e.Name),
			"path":    object.NewString(e.Path),
			"version": object.NewString(e.Version),
			"appends": object.NewList(appends),
			"layer":   object.Nil,
		}
		if e.Layer != nil {
			m["layer"] = object.NewString(e.Layer.Name)
		}
		items = append(items, object.NewMap(m))
	}
	return object.NewList(items)
}

// logObject provides log.Debug/Info/Warn/Error methods for Risor scripts.
type logObject struct {
	log *slog.Logger
}

func (l *logObject) Debug(msg string) {
	l.log.Debug(msg, "source", "hook")
}

func (l *logObject) Info(msg string) {
	l.log.Info(msg, "source", "hook")
}

func (l *logObject) Warn(msg string) {
	l.log.Warn(msg, "source", "hook")
}

func (l *logObject) Error(msg string) {
	l.log.Error(msg, "source", "hook")
}

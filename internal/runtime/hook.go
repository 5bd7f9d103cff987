package runtime

import (
	"context"

	"github.com/jward/bbls/internal/project"
)

// ParseHook returns a scanner parse hook that runs script after every
// successful scan. The script sees recipes, classes, includes, layers,
// overrides and workspaces of the new snapshot, and can call reindex(path).
//
// Recipe maps hold name, path, version, layer and appends (a list of paths).
func (r *Runtime) ParseHook(script string, reindex ReindexFunc) func(ctx context.Context, snap *project.Snapshot) error {
	return func(ctx context.Context, snap *project.Snapshot) error {
		globals := snapshotGlobals(snap)
		globals["reindex"] = makeReindexFn(reindex)
		return r.RunScript(ctx, script, globals)
	}
}

// Package bbls provides language tooling for BitBake projects: it discovers
// the layers, recipes, classes and include files of a build through the
// bitbake command line tools, parses BitBake documents, and answers
// definition and hover queries by walking inherit, include and require
// chains.
//
// # Pipeline
//
// bbls works in three steps:
//
//  1. Scan: [Engine.Rescan] runs bitbake-layers, bitbake-getvar and devtool
//     in the configured build environment and walks the layer directories.
//     The result is published as one immutable project snapshot. Paths
//     reported from inside a build container are translated to host paths.
//
//  2. Parse: documents are opened with [Engine.Open] or [Engine.OpenFile].
//     Each one is indexed for variable, function and task declarations,
//     comment blocks, directives and hoverable tokens.
//
//  3. Query: [Engine.Query] captures the snapshot, the open documents and the
//     documentation catalog and returns a [QueryBuilder].
//
// # Usage
//
//	cfg, err := config.Discover(".")
//	if err != nil { ... }
//	e, err := bbls.New(cfg)
//	if err != nil { ... }
//
//	ctx := context.Background()
//	err = e.Rescan(ctx)
//	err = e.OpenFile("meta/recipes-core/busybox/busybox_1.36.1.bb")
//
//	q := e.Query()
//	locs := q.DefinitionAt(uri, 10, 5)
//	hover := q.HoverAt(uri, 10, 5)
//
// # Export
//
// [Engine.Export] writes the snapshot and the declarations of every known
// recipe, append, class and include file to a SQLite database. The bbls
// command reads it back for offline queries. Unchanged files are detected by
// content hash and skipped.
//
// # Scripts
//
// After every successful scan an optional Risor parse hook runs with the new
// snapshot. The embedded default, scripts/hooks/parse.risor, re-parses every
// open recipe and append file. See the internal/runtime package for the
// globals exposed to hook scripts.
package bbls

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/bbls"
	"github.com/jward/bbls/internal/config"
	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/store"
)

var flagLayer string

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the exported index",
	Long:  "Run queries against a scanned project. All line and column numbers are 0-based; columns count bytes.",
}

func init() {
	recipesCmd.Flags().StringVar(&flagLayer, "layer", "", "only list recipes provided by this layer")

	queryCmd.AddCommand(definitionCmd)
	queryCmd.AddCommand(hoverCmd)
	queryCmd.AddCommand(recipesCmd)
	queryCmd.AddCommand(layersCmd)
	queryCmd.AddCommand(symbolsCmd)
}

// --- Helpers ---

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dbPath := resolveDBPath(configRoot(cfg))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("database not found: %s (run 'bbls scan' first)", dbPath)
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, nil, err
	}
	return s, cfg, nil
}

// openEngine creates an Engine whose snapshot is the one exported to s. No
// bitbake command is run.
func openEngine(s *store.Store, cfg *config.Config) (*bbls.Engine, error) {
	engine, err := bbls.New(cfg, bbls.WithLogger(newLogger()))
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	snap, err := s.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	engine.SetSnapshot(snap)
	return engine, nil
}

// resolveFilePath converts a file argument to an absolute path.
// If the path is already absolute, it's returned as-is.
// Otherwise, it's resolved relative to the current working directory.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as an integer with a clear error.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}

// parsePosition parses the <file> <line> <col> arguments.
func parsePosition(args []string) (file string, line, col int, err error) {
	if file, err = resolveFilePath(args[0]); err != nil {
		return "", 0, 0, err
	}
	if line, err = parseIntArg(args[1], "line"); err != nil {
		return "", 0, 0, err
	}
	if col, err = parseIntArg(args[2], "col"); err != nil {
		return "", 0, 0, err
	}
	return file, line, col, nil
}

// outputResult writes a CLIResult in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

func count(n int) *int { return &n }

func rangeToCLI(uri string, r document.Range) CLILocation {
	return CLILocation{
		File:      document.PathOf(uri),
		StartLine: r.Start.Line,
		StartCol:  r.Start.Col,
		EndLine:   r.End.Line,
		EndCol:    r.End.Col,
	}
}

// --- Position-Based Commands ---

var definitionCmd = &cobra.Command{
	Use:   "definition <file> <line> <col>",
	Short: "Find where the token at a position is defined",
	Args:  cobra.ExactArgs(3),
	RunE:  runDefinition,
}

func runDefinition(cmd *cobra.Command, args []string) error {
	file, line, col, err := parsePosition(args)
	if err != nil {
		return outputError("definition", err)
	}
	s, cfg, err := openStore()
	if err != nil {
		return outputError("definition", err)
	}
	defer s.Close()

	locs, err := definitions(s, cfg, file, line, col)
	if err != nil {
		return outputError("definition", err)
	}
	return outputResult(CLIResult{
		Command:    "definition",
		Results:    locs,
		TotalCount: count(len(locs)),
	})
}

// definitions opens file with its scope chain against the exported snapshot
// and resolves the token at line:col.
func definitions(s *store.Store, cfg *config.Config, file string, line, col int) ([]CLILocation, error) {
	engine, err := openEngine(s, cfg)
	if err != nil {
		return nil, err
	}
	doc, err := engine.OpenFile(file)
	if err != nil {
		return nil, err
	}
	locs := engine.Query().DefinitionAt(doc.URI, line, col)
	out := make([]CLILocation, 0, len(locs))
	for _, loc := range locs {
		out = append(out, rangeToCLI(loc.URI, loc.Range))
	}
	return out, nil
}

var hoverCmd = &cobra.Command{
	Use:   "hover <file> <line> <col>",
	Short: "Show the documentation of the token at a position",
	Args:  cobra.ExactArgs(3),
	RunE:  runHover,
}

func runHover(cmd *cobra.Command, args []string) error {
	file, line, col, err := parsePosition(args)
	if err != nil {
		return outputError("hover", err)
	}
	s, cfg, err := openStore()
	if err != nil {
		return outputError("hover", err)
	}
	defer s.Close()

	h, err := hover(s, cfg, file, line, col)
	if err != nil {
		return outputError("hover", err)
	}
	if h == nil {
		return outputResult(CLIResult{Command: "hover", Results: nil})
	}
	return outputResult(CLIResult{
		Command:    "hover",
		Results:    *h,
		TotalCount: count(1),
	})
}

func hover(s *store.Store, cfg *config.Config, file string, line, col int) (*CLIHover, error) {
	engine, err := openEngine(s, cfg)
	if err != nil {
		return nil, err
	}
	doc, err := engine.OpenFile(file)
	if err != nil {
		return nil, err
	}
	h := engine.Query().HoverAt(doc.URI, line, col)
	if h == nil {
		return nil, nil
	}
	return &CLIHover{
		Contents:  h.Contents,
		StartLine: h.Range.Start.Line,
		StartCol:  h.Range.Start.Col,
		EndLine:   h.Range.End.Line,
		EndCol:    h.Range.End.Col,
	}, nil
}

// --- Snapshot Commands ---

var recipesCmd = &cobra.Command{
	Use:   "recipes",
	Short: "List recipes, optionally filtered by layer",
	Args:  cobra.NoArgs,
	RunE:  runRecipes,
}

func runRecipes(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return outputError("recipes", err)
	}
	defer s.Close()

	recipes, err := listRecipes(s, flagLayer)
	if err != nil {
		return outputError("recipes", err)
	}
	return outputResult(CLIResult{
		Command:    "recipes",
		Results:    recipes,
		TotalCount: count(len(recipes)),
	})
}

func listRecipes(s *store.Store, layer string) ([]CLIRecipe, error) {
	var elems []bbls.Element
	if layer != "" {
		var err error
		if elems, err = s.RecipesByLayer(layer); err != nil {
			return nil, err
		}
	} else {
		snap, err := s.LoadSnapshot()
		if err != nil {
			return nil, err
		}
		elems = snap.Recipes
	}

	out := make([]CLIRecipe, 0, len(elems))
	for _, r := range elems {
		c := CLIRecipe{Name: r.Name, Version: r.Version, File: r.Path}
		if r.Layer != nil {
			c.Layer = r.Layer.Name
		}
		for _, a := range r.Appends {
			c.Appends = append(c.Appends, a.Path)
		}
		out = append(out, c)
	}
	return out, nil
}

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "List configured layers",
	Args:  cobra.NoArgs,
	RunE:  runLayers,
}

func runLayers(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return outputError("layers", err)
	}
	defer s.Close()

	layers, err := listLayers(s)
	if err != nil {
		return outputError("layers", err)
	}
	return outputResult(CLIResult{
		Command:    "layers",
		Results:    layers,
		TotalCount: count(len(layers)),
	})
}

func listLayers(s *store.Store) ([]CLILayer, error) {
	layers, err := s.Layers()
	if err != nil {
		return nil, err
	}
	out := make([]CLILayer, 0, len(layers))
	for _, l := range layers {
		out = append(out, CLILayer{Name: l.Name, Path: l.Path, Priority: l.Priority})
	}
	return out, nil
}

// --- Symbol Commands ---

var symbolsCmd = &cobra.Command{
	Use:   "symbols <name>",
	Short: "List the declarations of a variable, function or task",
	Args:  cobra.ExactArgs(1),
	RunE:  runSymbols,
}

func runSymbols(cmd *cobra.Command, args []string) error {
	s, _, err := openStore()
	if err != nil {
		return outputError("symbols", err)
	}
	defer s.Close()

	syms, err := listSymbols(s, args[0])
	if err != nil {
		return outputError("symbols", err)
	}
	return outputResult(CLIResult{
		Command:    "symbols",
		Results:    syms,
		TotalCount: count(len(syms)),
	})
}

func listSymbols(s *store.Store, name string) ([]CLISymbol, error) {
	syms, err := s.SymbolsByName(name)
	if err != nil {
		return nil, err
	}
	paths := map[int64]string{}
	out := make([]CLISymbol, 0, len(syms))
	for _, sym := range syms {
		path, ok := paths[sym.FileID]
		if !ok {
			f, err := s.FileByID(sym.FileID)
			if err != nil {
				return nil, err
			}
			if f != nil {
				path = f.Path
			}
			paths[sym.FileID] = path
		}
		out = append(out, CLISymbol{
			ID:        sym.ID,
			Name:      sym.Name,
			Kind:      sym.Kind,
			File:      path,
			StartLine: sym.StartLine,
			StartCol:  sym.StartCol,
			EndLine:   sym.EndLine,
			EndCol:    sym.EndCol,
		})
	}
	return out, nil
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

var hoverRangeColor = color.New(color.FgCyan, color.Bold)

// formatLocationsText formats CLILocation results as "file:line:col" lines.
func formatLocationsText(w io.Writer, locs []CLILocation) {
	for _, loc := range locs {
		fmt.Fprintf(w, "%s:%d:%d\n", loc.File, loc.StartLine, loc.StartCol)
	}
}

// formatHoverText prints the hover range followed by its markdown contents.
func formatHoverText(w io.Writer, h CLIHover) {
	hoverRangeColor.Fprintf(w, "%d:%d-%d:%d\n", h.StartLine, h.StartCol, h.EndLine, h.EndCol)
	fmt.Fprintln(w, strings.TrimRight(h.Contents, "\n"))
}

// formatSymbolsText formats CLISymbol results as aligned columns.
func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tFILE\tLINE")
	for _, s := range syms {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", s.ID, s.Name, s.Kind, s.File, s.StartLine)
	}
	tw.Flush()
}

// formatLayersText formats CLILayer results as aligned columns.
func formatLayersText(w io.Writer, layers []CLILayer) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRIORITY\tPATH")
	for _, l := range layers {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", l.Name, l.Priority, l.Path)
	}
	tw.Flush()
}

// formatRecipesText formats CLIRecipe results as aligned columns. Appends
// are listed below their recipe.
func formatRecipesText(w io.Writer, recipes []CLIRecipe) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tLAYER\tFILE")
	for _, r := range recipes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Version, r.Layer, r.File)
		for _, a := range r.Appends {
			fmt.Fprintf(tw, "\t\t\t  + %s\n", a)
		}
	}
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	return writeResultText(os.Stdout, result)
}

func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLILocation:
		formatLocationsText(w, v)
	case CLIHover:
		formatHoverText(w, v)
	case []CLISymbol:
		formatSymbolsText(w, v)
	case []CLILayer:
		formatLayersText(w, v)
	case []CLIRecipe:
		formatRecipesText(w, v)
	case nil:
		// No output for nil results (e.g. hover over plain text).
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

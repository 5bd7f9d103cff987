package scanner

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/jward/bbls/internal/project"
)

// Output of the external tools is treated as untrusted: every parser skips
// rows that do not have the expected shape instead of failing.

// LayerRow is one row of `bitbake-layers show-layers`.
type LayerRow struct {
	Name     string
	Path     string
	Priority int
}

var layersHeader = regexp.MustCompile(`^layer\s+path\s+priority\s*$`)

// ParseLayers reads the rows following the `layer path priority` header.
func ParseLayers(out string) []LayerRow {
	lines := splitLines(out)
	start := -1
	for i, line := range lines {
		if layersHeader.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var rows []LayerRow
	for _, line := range lines[start:] {
		fields := strings.Fields(line)
		if len(fields) != 3 {
			continue
		}
		priority, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		rows = append(rows, LayerRow{Name: fields[0], Path: fields[1], Priority: priority})
	}
	return rows
}

// RecipeGroup is one recipe of `bitbake-layers show-recipes` with every layer
// that provides it. The first provider is the preferred one.
type RecipeGroup struct {
	Name      string
	Providers []project.Provider
}

// ParseRecipes reads `<name>:` headers each followed by indented
// `<layer> <version> [(skipped)]` lines. Headers without provider lines are
// dropped.
func ParseRecipes(out string) []RecipeGroup {
	var groups []RecipeGroup
	var cur *RecipeGroup
	flush := func() {
		if cur != nil && len(cur.Providers) > 0 {
			groups = append(groups, *cur)
		}
		cur = nil
	}

	for _, line := range splitLines(out) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !isIndented(line) {
			flush()
			name, ok := strings.CutSuffix(strings.TrimSpace(line), ":")
			if ok && name != "" && !strings.ContainsAny(name, " \t") {
				cur = &RecipeGroup{Name: name}
			}
			continue
		}
		if cur == nil {
			continue
		}
		if p, ok := parseProvider(line); ok {
			cur.Providers = append(cur.Providers, p)
		}
	}
	flush()
	return groups
}

func parseProvider(line string) (project.Provider, bool) {
	fields := strings.Fields(line)
	switch {
	case len(fields) == 2:
		return project.Provider{Layer: fields[0], Version: fields[1]}, true
	case len(fields) == 3 && fields[2] == "(skipped)":
		return project.Provider{Layer: fields[0], Version: fields[1], Skipped: true}, true
	}
	return project.Provider{}, false
}

// AppendGroup is one recipe file of `bitbake-layers show-appends` with the
// append files applied to it.
type AppendGroup struct {
	RecipeFile string
	Appends    []string
}

var (
	appendHeader = regexp.MustCompile(`^(\S+\.bb):\s*$`)
	appendLine   = regexp.MustCompile(`^\s+(\S+\.bbappend)\s*$`)
)

// ParseAppends reads `<recipe>_<version>.bb:` headers followed by indented
// .bbappend paths.
func ParseAppends(out string) []AppendGroup {
	var groups []AppendGroup
	var cur *AppendGroup
	flush := func() {
		if cur != nil && len(cur.Appends) > 0 {
			groups = append(groups, *cur)
		}
		cur = nil
	}

	for _, line := range splitLines(out) {
		if m := appendHeader.FindStringSubmatch(line); m != nil {
			flush()
			cur = &AppendGroup{RecipeFile: m[1]}
			continue
		}
		if m := appendLine.FindStringSubmatch(line); m != nil && cur != nil {
			cur.Appends = append(cur.Appends, m[1])
			continue
		}
		if !isIndented(line) {
			flush()
		}
	}
	flush()
	return groups
}

var overridesLine = regexp.MustCompile(`(?m)^OVERRIDES="(.*)"\s*$`)

// ParseOverrides extracts the colon separated OVERRIDES value from
// `bitbake-getvar OVERRIDES`. A missing or empty value yields an empty list.
func ParseOverrides(out string) []string {
	m := overridesLine.FindStringSubmatch(out)
	if m == nil || m[1] == "" {
		return []string{}
	}
	return strings.Split(m[1], ":")
}

var workspaceLine = regexp.MustCompile(`(?m)^([^\s]+):\s([^\s]+)$`)

// ParseWorkspaces reads `name: path` lines of `devtool status`.
func ParseWorkspaces(out string) []project.Workspace {
	ws := []project.Workspace{}
	for _, m := range workspaceLine.FindAllStringSubmatch(strings.ReplaceAll(out, "\r", ""), -1) {
		ws = append(ws, project.Workspace{Name: m[1], Path: m[2]})
	}
	return ws
}

var recipePath = regexp.MustCompile(`(?:^|\s)(\S+\.bb)(?:\s|$)`)

// ParseRecipePaths returns every `*.bb` path token in free-form output, in
// order of appearance.
func ParseRecipePaths(out string) []string {
	var paths []string
	for _, line := range splitLines(out) {
		for _, m := range recipePath.FindAllStringSubmatch(line, -1) {
			paths = append(paths, m[1])
		}
	}
	return paths
}

func splitLines(out string) []string {
	return strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
}

func isIndented(line string) bool {
	return line != "" && (line[0] == ' ' || line[0] == '\t')
}

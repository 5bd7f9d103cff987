// Package project holds the data model produced by a project scan: layers,
// recipes, classes, include files, append files, overrides and devtool
// workspaces.
package project

import (
	"path/filepath"
	"strings"
)

// File extensions of the BitBake source kinds.
const (
	ExtRecipe  = ".bb"
	ExtAppend  = ".bbappend"
	ExtClass   = ".bbclass"
	ExtInclude = ".inc"
)

// WildcardVersion is the append version token that matches any recipe version.
const WildcardVersion = "%"

type Layer struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Priority int    `json:"priority"`
}

// Provider is one `<layer> <version>` line listed for a recipe.
type Provider struct {
	Layer   string `json:"layer"`
	Version string `json:"version"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Append is a .bbappend file attached to a recipe. Version is the token found
// after the first underscore of the append's file name, empty when absent.
type Append struct {
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
}

// Element describes a recipe, a class or an include file. Path is empty until
// the file has been located on disk.
type Element struct {
	Name      string     `json:"name"`
	Path      string     `json:"path,omitempty"`
	Version   string     `json:"version,omitempty"`
	Providers []Provider `json:"providers,omitempty"`
	Appends   []Append   `json:"appends,omitempty"`
	Layer     *Layer     `json:"layer,omitempty"`
}

type Workspace struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Snapshot is the result of one completed scan cycle. A published Snapshot is
// never modified; a new cycle builds and publishes a new value.
type Snapshot struct {
	Classes    []Element   `json:"classes"`
	Includes   []Element   `json:"includes"`
	Layers     []Layer     `json:"layers"`
	Overrides  []string    `json:"overrides"`
	Recipes    []Element   `json:"recipes"`
	Workspaces []Workspace `json:"workspaces"`
}

// Empty returns a snapshot with every list allocated and empty.
func Empty() *Snapshot {
	return &Snapshot{
		Classes:    []Element{},
		Includes:   []Element{},
		Layers:     []Layer{},
		Overrides:  []string{},
		Recipes:    []Element{},
		Workspaces: []Workspace{},
	}
}

// Layer returns the layer with the given name, or nil.
func (s *Snapshot) Layer(name string) *Layer {
	for i := range s.Layers {
		if s.Layers[i].Name == name {
			return &s.Layers[i]
		}
	}
	return nil
}

// Recipe returns the first recipe with the given name, or nil.
func (s *Snapshot) Recipe(name string) *Element {
	for i := range s.Recipes {
		if s.Recipes[i].Name == name {
			return &s.Recipes[i]
		}
	}
	return nil
}

// ClassesNamed returns every class whose base name equals name, in scan order.
func (s *Snapshot) ClassesNamed(name string) []Element {
	return named(s.Classes, name)
}

// IncludesNamed returns every include file whose base name equals name.
func (s *Snapshot) IncludesNamed(name string) []Element {
	return named(s.Includes, name)
}

// RecipesNamed returns every recipe whose name equals name.
func (s *Snapshot) RecipesNamed(name string) []Element {
	return named(s.Recipes, name)
}

func named(elems []Element, name string) []Element {
	var out []Element
	for _, e := range elems {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// WithWorkspaces returns a shallow copy of s carrying the given workspaces.
func (s *Snapshot) WithWorkspaces(ws []Workspace) *Snapshot {
	cp := *s
	cp.Workspaces = ws
	return &cp
}

// Stem returns the file name of path without directory and extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SplitVersioned splits a recipe or append file name such as
// "busybox_1.36.1.bb" into its name ("busybox") and version token ("1.36.1").
// The split happens at the first underscore; names containing underscores
// before the version are therefore cut short.
func SplitVersioned(file string) (name, version string) {
	base := filepath.Base(file)
	for _, ext := range []string{ExtAppend, ExtRecipe} {
		if strings.HasSuffix(base, ext) {
			base = strings.TrimSuffix(base, ext)
			break
		}
	}
	name, version, _ = strings.Cut(base, "_")
	return name, version
}

// VersionMatches reports whether an append with the given version token
// applies to a recipe version. An empty token or the wildcard matches every
// recipe; otherwise the recipe version must start with the token. A trailing
// wildcard ("1.%") is dropped before the prefix comparison.
func VersionMatches(appendVersion, recipeVersion string) bool {
	if appendVersion == "" || appendVersion == WildcardVersion {
		return true
	}
	if recipeVersion == "" {
		return false
	}
	return strings.HasPrefix(recipeVersion, strings.TrimSuffix(appendVersion, WildcardVersion))
}

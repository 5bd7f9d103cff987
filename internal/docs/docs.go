// Package docs holds the built-in documentation shown on hover: BitBake and
// Yocto variables, variable flags, tasks and datastore functions.
//
// Documentation is loaded per Kind from a Source. Kinds sharing a namespace
// override each other: loading yocto-variables after variables replaces the
// text of every variable both describe.
package docs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Kind string

const (
	KindVariables          Kind = "variables"
	KindYoctoVariables     Kind = "yocto-variables"
	KindFlags              Kind = "flags"
	KindTasks              Kind = "tasks"
	KindDatastoreFunctions Kind = "datastore-functions"
)

// Kinds lists every kind in the order they are loaded by default.
func Kinds() []Kind {
	return []Kind{KindVariables, KindYoctoVariables, KindFlags, KindTasks, KindDatastoreFunctions}
}

type namespace int

const (
	nsVariable namespace = iota
	nsFlag
	nsTask
	nsFunction
)

func (k Kind) namespace() (namespace, error) {
	switch k {
	case KindVariables, KindYoctoVariables:
		return nsVariable, nil
	case KindFlags:
		return nsFlag, nil
	case KindTasks:
		return nsTask, nil
	case KindDatastoreFunctions:
		return nsFunction, nil
	}
	return 0, fmt.Errorf("docs: unknown kind %q", string(k))
}

// Source loads the name to text mapping of one kind.
type Source interface {
	Load(kind Kind) (map[string]string, error)
}

// Catalog is an immutable set of documentation entries. With returns a new
// Catalog, so a Catalog captured by a query never changes.
type Catalog struct {
	entries map[namespace]map[string]string
}

func NewCatalog() *Catalog {
	return &Catalog{entries: map[namespace]map[string]string{}}
}

// With returns a copy of c where every entry of docs replaces the entry of
// the same name in kind's namespace.
func (c *Catalog) With(kind Kind, docs map[string]string) (*Catalog, error) {
	ns, err := kind.namespace()
	if err != nil {
		return nil, err
	}
	next := &Catalog{entries: make(map[namespace]map[string]string, len(c.entries)+1)}
	for k, v := range c.entries {
		next.entries[k] = v
	}
	merged := make(map[string]string, len(c.entries[ns])+len(docs))
	for name, text := range c.entries[ns] {
		merged[name] = text
	}
	for name, text := range docs {
		merged[name] = text
	}
	next.entries[ns] = merged
	return next, nil
}

func (c *Catalog) lookup(ns namespace, name string) (string, bool) {
	text, ok := c.entries[ns][name]
	return text, ok
}

func (c *Catalog) Variable(name string) (string, bool) { return c.lookup(nsVariable, name) }
func (c *Catalog) Flag(name string) (string, bool)     { return c.lookup(nsFlag, name) }
func (c *Catalog) Task(name string) (string, bool)     { return c.lookup(nsTask, name) }
func (c *Catalog) Function(name string) (string, bool) { return c.lookup(nsFunction, name) }

// Len returns the number of entries across all namespaces.
func (c *Catalog) Len() int {
	n := 0
	for _, m := range c.entries {
		n += len(m)
	}
	return n
}

// Load applies kinds from src to c in order. Kinds the source does not have
// (os.ErrNotExist) are skipped.
func Load(c *Catalog, src Source, kinds ...Kind) (*Catalog, error) {
	for _, kind := range kinds {
		docs, err := src.Load(kind)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return c, fmt.Errorf("docs: load %s: %w", kind, err)
		}
		if c, err = c.With(kind, docs); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MapSource serves documentation from memory.
type MapSource map[Kind]map[string]string

func (m MapSource) Load(kind Kind) (map[string]string, error) {
	docs, ok := m[kind]
	if !ok {
		return nil, fmt.Errorf("docs: %s: %w", kind, os.ErrNotExist)
	}
	return docs, nil
}

// TOMLSource reads `<dir>/<kind>.toml`, where every table is one entry:
//
//	[DESCRIPTION]
//	doc = "A long description for the recipe."
type TOMLSource struct {
	Dir string
}

type tomlEntry struct {
	Doc string `toml:"doc"`
}

func (s TOMLSource) Load(kind Kind) (map[string]string, error) {
	path := filepath.Join(s.Dir, string(kind)+".toml")
	var entries map[string]tomlEntry
	if _, err := toml.DecodeFile(path, &entries); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	docs := make(map[string]string, len(entries))
	for name, e := range entries {
		docs[name] = e.Doc
	}
	return docs, nil
}

var keywords = map[string]string{
	"inherit": "**inherit**\n___\n" +
		"Inherits one or more classes (`.bbclass` files) into the current recipe, class or configuration file. " +
		"Classes are searched in the `classes`, `classes-recipe` and `classes-global` directories of every layer.\n\n" +
		"```\ninherit autotools pkgconfig\n```",
	"inherit_defer": "**inherit_defer**\n___\n" +
		"Like `inherit`, but the classes are inherited at the end of parsing, " +
		"so variables set later in the file can still select which class is used.\n\n" +
		"```\ninherit_defer ${VIRTUAL-RUNTIME_init_manager}\n```",
	"include": "**include**\n___\n" +
		"Inserts the contents of another file at this point. A missing file is silently ignored; " +
		"relative paths are searched in `BBPATH`.\n\n" +
		"```\ninclude conf/distro/include/security_flags.inc\n```",
	"require": "**require**\n___\n" +
		"Inserts the contents of another file at this point, like `include`, " +
		"but parsing fails when the file cannot be found.\n\n" +
		"```\nrequire recipes-core/busybox/busybox.inc\n```",
}

// KeywordDoc returns the fixed documentation of a directive keyword.
func KeywordDoc(keyword string) (string, bool) {
	doc, ok := keywords[keyword]
	return doc, ok
}

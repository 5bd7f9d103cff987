package store

import (
	"database/sql"
	"fmt"

	"github.com/jward/bbls/internal/project"
)

// ReplaceSnapshot transactionally replaces the stored snapshot with snap.
// Row order follows snapshot order.
func (s *Store) ReplaceSnapshot(snap *project.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"appends", "providers", "recipes", "classes", "includes", "layers", "overrides", "workspaces"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("replace snapshot: clear %s: %w", table, err)
		}
	}

	for _, l := range snap.Layers {
		if _, err := tx.Exec("INSERT INTO layers (name, path, priority) VALUES (?, ?, ?)", l.Name, l.Path, l.Priority); err != nil {
			return fmt.Errorf("replace snapshot: layer %q: %w", l.Name, err)
		}
	}
	for _, r := range snap.Recipes {
		if err := insertRecipeTx(tx, &r); err != nil {
			return fmt.Errorf("replace snapshot: recipe %q: %w", r.Name, err)
		}
	}
	for _, table := range []struct {
		name  string
		elems []project.Element
	}{{"classes", snap.Classes}, {"includes", snap.Includes}} {
		for _, e := range table.elems {
			_, err := tx.Exec("INSERT INTO "+table.name+" (name, path, layer) VALUES (?, ?, ?)", e.Name, e.Path, layerName(e.Layer))
			if err != nil {
				return fmt.Errorf("replace snapshot: %s %q: %w", table.name, e.Name, err)
			}
		}
	}
	for _, o := range snap.Overrides {
		if _, err := tx.Exec("INSERT INTO overrides (name) VALUES (?)", o); err != nil {
			return fmt.Errorf("replace snapshot: override %q: %w", o, err)
		}
	}
	for _, w := range snap.Workspaces {
		if _, err := tx.Exec("INSERT INTO workspaces (name, path) VALUES (?, ?)", w.Name, w.Path); err != nil {
			return fmt.Errorf("replace snapshot: workspace %q: %w", w.Name, err)
		}
	}
	return tx.Commit()
}

func insertRecipeTx(tx *sql.Tx, r *project.Element) error {
	res, err := tx.Exec(
		"INSERT INTO recipes (name, path, version, layer) VALUES (?, ?, ?, ?)",
		r.Name, r.Path, r.Version, layerName(r.Layer),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, p := range r.Providers {
		if _, err := tx.Exec("INSERT INTO providers (recipe_id, layer, version, skipped) VALUES (?, ?, ?, ?)", id, p.Layer, p.Version, p.Skipped); err != nil {
			return err
		}
	}
	for _, a := range r.Appends {
		if _, err := tx.Exec("INSERT INTO appends (recipe_id, path, version) VALUES (?, ?, ?)", id, a.Path, a.Version); err != nil {
			return err
		}
	}
	return nil
}

func layerName(l *project.Layer) string {
	if l == nil {
		return ""
	}
	return l.Name
}

// LoadSnapshot reads the stored snapshot. An empty database gives an empty
// snapshot.
func (s *Store) LoadSnapshot() (*project.Snapshot, error) {
	snap := project.Empty()
	var err error
	if snap.Layers, err = s.Layers(); err != nil {
		return nil, err
	}
	if snap.Recipes, err = s.queryRecipes("SELECT id, name, path, version, layer FROM recipes ORDER BY id"); err != nil {
		return nil, err
	}
	if snap.Classes, err = s.queryElements("classes"); err != nil {
		return nil, err
	}
	if snap.Includes, err = s.queryElements("includes"); err != nil {
		return nil, err
	}
	if snap.Overrides, err = s.queryStrings("SELECT name FROM overrides ORDER BY id"); err != nil {
		return nil, err
	}

	rows, err := s.db.Query("SELECT name, path FROM workspaces ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("load workspaces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var w project.Workspace
		if err := rows.Scan(&w.Name, &w.Path); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		snap.Workspaces = append(snap.Workspaces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resolveLayers(snap, snap.Recipes)
	resolveLayers(snap, snap.Classes)
	resolveLayers(snap, snap.Includes)
	return snap, nil
}

// resolveLayers replaces the name-only layers read from the database with
// copies of the snapshot's layers.
func resolveLayers(snap *project.Snapshot, elems []project.Element) {
	for i := range elems {
		if elems[i].Layer == nil {
			continue
		}
		if l := snap.Layer(elems[i].Layer.Name); l != nil {
			cp := *l
			elems[i].Layer = &cp
		} else {
			elems[i].Layer = nil
		}
	}
}

func (s *Store) Layers() ([]project.Layer, error) {
	rows, err := s.db.Query("SELECT name, path, priority FROM layers ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("layers: %w", err)
	}
	defer rows.Close()
	layers := []project.Layer{}
	for rows.Next() {
		var l project.Layer
		if err := rows.Scan(&l.Name, &l.Path, &l.Priority); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		layers = append(layers, l)
	}
	return layers, rows.Err()
}

// RecipesByLayer returns the recipes whose first provider is the named layer.
func (s *Store) RecipesByLayer(layer string) ([]project.Element, error) {
	recipes, err := s.queryRecipes("SELECT id, name, path, version, layer FROM recipes WHERE layer = ? ORDER BY id", layer)
	if err != nil {
		return nil, err
	}
	layers, err := s.Layers()
	if err != nil {
		return nil, err
	}
	resolveLayers(&project.Snapshot{Layers: layers}, recipes)
	return recipes, nil
}

func (s *Store) queryRecipes(query string, args ...any) ([]project.Element, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recipes: %w", err)
	}
	var ids []int64
	recipes := []project.Element{}
	for rows.Next() {
		var (
			id    int64
			r     project.Element
			layer string
		)
		if err := rows.Scan(&id, &r.Name, &r.Path, &r.Version, &layer); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		if layer != "" {
			r.Layer = &project.Layer{Name: layer}
		}
		ids = append(ids, id)
		recipes = append(recipes, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		if recipes[i].Providers, err = s.providers(id); err != nil {
			return nil, err
		}
		if recipes[i].Appends, err = s.appends(id); err != nil {
			return nil, err
		}
	}
	return recipes, nil
}

func (s *Store) providers(recipeID int64) ([]project.Provider, error) {
	rows, err := s.db.Query("SELECT layer, version, skipped FROM providers WHERE recipe_id = ? ORDER BY id", recipeID)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	defer rows.Close()
	var out []project.Provider
	for rows.Next() {
		var p project.Provider
		if err := rows.Scan(&p.Layer, &p.Version, &p.Skipped); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) appends(recipeID int64) ([]project.Append, error) {
	rows, err := s.db.Query("SELECT path, version FROM appends WHERE recipe_id = ? ORDER BY id", recipeID)
	if err != nil {
		return nil, fmt.Errorf("appends: %w", err)
	}
	defer rows.Close()
	var out []project.Append
	for rows.Next() {
		var a project.Append
		if err := rows.Scan(&a.Path, &a.Version); err != nil {
			return nil, fmt.Errorf("scan append: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) queryElements(table string) ([]project.Element, error) {
	rows, err := s.db.Query("SELECT name, path, layer FROM " + table + " ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()
	elems := []project.Element{}
	for rows.Next() {
		var (
			e     project.Element
			layer string
		)
		if err := rows.Scan(&e.Name, &e.Path, &layer); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		if layer != "" {
			e.Layer = &project.Layer{Name: layer}
		}
		elems = append(elems, e)
	}
	return elems, rows.Err()
}

func (s *Store) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

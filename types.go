package bbls

import (
	"github.com/jward/bbls/internal/document"
	"github.com/jward/bbls/internal/project"
	"github.com/jward/bbls/internal/resolve"
	"github.com/jward/bbls/internal/scanner"
	"github.com/jward/bbls/internal/store"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// API. These are Go type aliases (=), so no conversion is needed.

type Snapshot = project.Snapshot
type Layer = project.Layer
type Element = project.Element
type Append = project.Append
type Provider = project.Provider
type Workspace = project.Workspace

type Document = document.Document
type Position = document.Position
type Range = document.Range
type Symbol = document.Symbol

type Location = resolve.Location
type Hover = resolve.Hover

type Event = scanner.Event

const (
	ScanStarted = scanner.ScanStarted
	ScanReady   = scanner.ScanReady
)

type Store = store.Store

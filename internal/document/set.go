package document

import (
	"sort"
	"sync"
)

// Set holds the open documents keyed by URI. Documents are replaced, never
// modified, so a View can be read without locking.
type Set struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewSet() *Set {
	return &Set{docs: make(map[string]*Document)}
}

// Open parses text and stores it under uri, replacing any previous version.
func (s *Set) Open(uri, text string) *Document {
	doc := Parse(uri, text)
	s.Put(doc)
	return doc
}

func (s *Set) Put(doc *Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.URI] = doc
}

// Get returns the document for uri, or nil.
func (s *Set) Get(uri string) *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}

func (s *Set) Close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, uri)
}

// Reset drops every document.
func (s *Set) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*Document)
}

// View returns a copy of the current URI to document map.
func (s *Set) View() map[string]*Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	view := make(map[string]*Document, len(s.docs))
	for uri, doc := range s.docs {
		view[uri] = doc
	}
	return view
}

// URIs returns the URIs of every document, sorted.
func (s *Set) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

package registry

import (
	"github.com/phobologic/testlink/internal/model"
)

type markerEntries struct {
	production []model.Placeholder
	tests      []model.Placeholder
}

// Placeholders indexes marker occurrences by marker string, split into
// production-side and test-side entries.
type Placeholders struct {
	byMarker map[string]*markerEntries
	seen     map[model.Placeholder]struct{}
}

// NewPlaceholders returns an empty placeholder registry.
func NewPlaceholders() *Placeholders {
	return &Placeholders{
		byMarker: make(map[string]*markerEntries),
		seen:     make(map[model.Placeholder]struct{}),
	}
}

// Add records one marker occurrence. Identical occurrences are kept once.
func (p *Placeholders) Add(entry model.Placeholder) {
	if _, dup := p.seen[entry]; dup {
		return
	}
	p.seen[entry] = struct{}{}

	m := p.byMarker[entry.Marker]
	if m == nil {
		m = &markerEntries{}
		p.byMarker[entry.Marker] = m
	}
	if entry.Kind == model.Production {
		m.production = append(m.production, entry)
	} else {
		m.tests = append(m.tests, entry)
	}
}

// Markers returns every marker with at least one entry, sorted.
func (p *Placeholders) Markers() []string {
	return sortedKeys(p.byMarker)
}

// Production returns the production-side entries of marker.
func (p *Placeholders) Production(marker string) []model.Placeholder {
	if m := p.byMarker[marker]; m != nil {
		return append([]model.Placeholder{}, m.production...)
	}
	return []model.Placeholder{}
}

// Tests returns the test-side entries of marker.
func (p *Placeholders) Tests(marker string) []model.Placeholder {
	if m := p.byMarker[marker]; m != nil {
		return append([]model.Placeholder{}, m.tests...)
	}
	return []model.Placeholder{}
}

// Has reports whether marker has any entry.
func (p *Placeholders) Has(marker string) bool {
	_, ok := p.byMarker[marker]
	return ok
}

// Count returns the number of distinct marker occurrences.
func (p *Placeholders) Count() int {
	return len(p.seen)
}

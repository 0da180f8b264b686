// Package resolver expands placeholder markers into pairing actions.
//
// A marker found on P production methods and T tests resolves to the full
// P×T cross-product of actions. Markers seen on only one side are orphans
// and produce one error per occurrence instead.
package resolver

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/phobologic/testlink/internal/model"
)

var (
	// ErrInvalidMarker is returned when a targeted marker is not well formed.
	ErrInvalidMarker = errors.New("invalid marker")
	// ErrMarkerNotFound is returned when a targeted marker has no occurrence
	// on either side.
	ErrMarkerNotFound = errors.New("marker not found")
)

var markerRe = regexp.MustCompile(`^@@?[A-Za-z][A-Za-z0-9_-]*$`)

// ValidMarker reports whether s is a well-formed marker such as @user-create
// or @@user-create.
func ValidMarker(s string) bool {
	return markerRe.MatchString(s)
}

// Registry is the read side of the placeholder registry.
type Registry interface {
	Markers() []string
	Production(marker string) []model.Placeholder
	Tests(marker string) []model.Placeholder
}

// Resolve resolves every marker in reg. Orphans and unsupported
// combinations become errors; the remaining markers still resolve.
func Resolve(reg Registry) *model.Resolution {
	res := newResolution()
	for _, marker := range reg.Markers() {
		resolveInto(res, marker, reg.Production(marker), reg.Tests(marker))
	}
	return res
}

// ResolveMarker resolves a single marker. It fails with ErrInvalidMarker or
// ErrMarkerNotFound before looking at either side; a one-sided marker is
// reported through the resolution's errors like Resolve does.
func ResolveMarker(reg Registry, marker string) (*model.Resolution, error) {
	if !ValidMarker(marker) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarker, marker)
	}
	prod, tests := reg.Production(marker), reg.Tests(marker)
	if len(prod) == 0 && len(tests) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMarkerNotFound, marker)
	}
	res := newResolution()
	resolveInto(res, marker, prod, tests)
	return res, nil
}

func resolveInto(res *model.Resolution, marker string, prod, tests []model.Placeholder) {
	prod = collapse(res, marker, prod)
	tests = collapse(res, marker, tests)

	switch {
	case len(prod) == 0 && len(tests) == 0:
		return
	case len(tests) == 0:
		for _, p := range prod {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: production method %s (%s:%d) has no matching test", marker, p.Identifier, p.File, p.Line))
		}
		return
	case len(prod) == 0:
		for _, t := range tests {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"%s: test %s (%s:%d) has no matching production method", marker, t.Identifier, t.File, t.Line))
		}
		return
	}

	if model.IsDocMarker(marker) {
		for _, t := range tests {
			if t.Framework == model.FluentChain {
				res.Errors = append(res.Errors, fmt.Sprintf(
					"%s: fluent-chain test %s cannot use documentation tags; use %s instead",
					marker, t.Identifier, strings.TrimPrefix(marker, "@")))
				return
			}
		}
	}

	for _, p := range prod {
		for _, t := range tests {
			res.Actions = append(res.Actions, model.Action{Marker: marker, Production: p, Test: t})
		}
	}
}

// collapse keeps the first occurrence of a marker written more than once at
// the same site of the same method or test.
func collapse(res *model.Resolution, marker string, entries []model.Placeholder) []model.Placeholder {
	type key struct {
		id   string
		site model.Site
	}
	seen := make(map[key]bool, len(entries))
	out := entries[:0:0]
	for _, e := range entries {
		k := key{e.Identifier, e.Site}
		if seen[k] {
			res.Warnings = append(res.Warnings, fmt.Sprintf(
				"%s: repeated on %s (%s:%d), using the first occurrence", marker, e.Identifier, e.File, e.Line))
			continue
		}
		seen[k] = true
		out = append(out, e)
	}
	return out
}

func newResolution() *model.Resolution {
	return &model.Resolution{Actions: []model.Action{}, Errors: []string{}, Warnings: []string{}}
}

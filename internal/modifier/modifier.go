// Package modifier rewrites PHP source files in place: it replaces resolved
// placeholder markers with concrete link declarations and keeps production
// #[TestedBy] attributes in sync with the tests.
package modifier

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/model"
)

var (
	// ErrPruneNotConfirmed is returned when a prune is requested without Force.
	ErrPruneNotConfirmed = errors.New("prune requires confirmation (--force)")
	// ErrMarkerNotRewritten is returned by Apply when a marker occurrence
	// could not be located in the source. No file is written in that case.
	ErrMarkerNotRewritten = errors.New("marker could not be rewritten")
)

// Modifier edits files below a project root.
type Modifier struct {
	root   string
	logger *zap.Logger
}

// New returns a modifier for the project at root.
func New(root string, logger *zap.Logger) *Modifier {
	return &Modifier{root: root, logger: logger}
}

// occurrence is one marker occurrence together with every counterpart it
// resolves to, in action order.
type occurrence struct {
	entry        model.Placeholder
	counterparts []model.Placeholder
}

// span returns the lines holding the occurrence's attribute or call.
func (o *occurrence) span() (int, int) {
	a := o.entry.Anchor
	if a.StartLine > 0 && a.StartLine <= o.entry.Line && a.EndLine >= o.entry.Line {
		return a.StartLine, a.EndLine
	}
	return o.entry.Line, o.entry.Line
}

// occurrenceKey identifies a piece of source text. A class-level marker
// stands for every test method of its class and is still rewritten once.
type occurrenceKey struct {
	marker string
	line   int
	site   model.Site
}

// Apply replaces each marker occurrence named by actions. An occurrence that
// fans out to several counterparts is rewritten once, with one declaration
// per counterpart. Every file is edited in memory first: when an occurrence
// cannot be rewritten Apply fails with ErrMarkerNotRewritten and leaves all
// files untouched. In dry run no file is written but the same result is
// returned.
func (m *Modifier) Apply(actions []model.Action, dryRun bool) (*model.ApplyResult, error) {
	byFile := make(map[string][]*occurrence)
	index := make(map[string]map[occurrenceKey]*occurrence)

	add := func(own, other model.Placeholder) {
		if index[own.File] == nil {
			index[own.File] = make(map[occurrenceKey]*occurrence)
		}
		key := occurrenceKey{own.Marker, own.Line, own.Site}
		occ := index[own.File][key]
		if occ == nil {
			occ = &occurrence{entry: own}
			index[own.File][key] = occ
			byFile[own.File] = append(byFile[own.File], occ)
		}
		for _, c := range occ.counterparts {
			if c.Identifier == other.Identifier {
				return
			}
		}
		occ.counterparts = append(occ.counterparts, other)
	}
	for _, a := range actions {
		add(a.Production, a.Test)
		add(a.Test, a.Production)
	}

	var (
		pending []*fileEdit
		missed  []string
	)
	for _, file := range sortedFiles(byFile) {
		e, err := m.edit(file, func(src *source) []model.Change {
			changes, failed := replaceOccurrences(src, byFile[file], m.logger)
			missed = append(missed, failed...)
			return changes
		})
		if err != nil {
			return nil, err
		}
		if e != nil {
			pending = append(pending, e)
		}
	}
	if len(missed) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMarkerNotRewritten, strings.Join(missed, ", "))
	}
	return m.commit(pending, dryRun)
}

// fileEdit is one file's rewritten content, not yet written.
type fileEdit struct {
	file    string
	path    string
	perm    os.FileMode
	text    string
	changed bool
	changes []model.Change
}

// edit loads file and lets fn change it in memory. A missing file is
// skipped and returns nil.
func (m *Modifier) edit(file string, fn func(*source) []model.Change) (*fileEdit, error) {
	path := filepath.Join(m.root, filepath.FromSlash(file))
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Debug("skipping missing file", zap.String("path", file))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", file, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}

	src := newSource(file, string(data))
	changes := fn(src)
	updated := src.String()
	return &fileEdit{
		file:    file,
		path:    path,
		perm:    info.Mode().Perm(),
		text:    updated,
		changed: updated != string(data),
		changes: changes,
	}, nil
}

// commit writes the changed files unless dryRun is set and reports them.
func (m *Modifier) commit(edits []*fileEdit, dryRun bool) (*model.ApplyResult, error) {
	result := &model.ApplyResult{ModifiedFiles: []string{}, Changes: []model.Change{}, DryRun: dryRun}
	for _, e := range edits {
		result.Changes = append(result.Changes, e.changes...)
		if !e.changed {
			continue
		}
		if !dryRun {
			if err := os.WriteFile(e.path, []byte(e.text), e.perm); err != nil {
				return nil, fmt.Errorf("writing %s: %w", e.file, err)
			}
			m.logger.Info("rewrote file", zap.String("path", e.file), zap.Int("changes", len(e.changes)))
		}
		result.ModifiedFiles = append(result.ModifiedFiles, e.file)
	}
	return result, nil
}

func sortedFiles[V any](m map[string]V) []string {
	files := make([]string, 0, len(m))
	for f := range m {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// source is a file split into lines. Edits never renumber: a line may grow
// to hold several lines, be dropped, or gain lines inserted before it, and
// line numbers keep referring to the original text.
type source struct {
	file    string
	lines   []string
	before  map[int][]string
	dropped map[int]bool
}

func newSource(file, text string) *source {
	return &source{
		file:    file,
		lines:   strings.Split(text, "\n"),
		before:  make(map[int][]string),
		dropped: make(map[int]bool),
	}
}

func (s *source) String() string {
	out := make([]string, 0, len(s.lines))
	for i, line := range s.lines {
		n := i + 1
		out = append(out, s.before[n]...)
		if !s.dropped[n] {
			out = append(out, line)
		}
	}
	out = append(out, s.before[len(s.lines)+1]...)
	return strings.Join(out, "\n")
}

// line returns the text of 1-based line n.
func (s *source) line(n int) (string, bool) {
	if n < 1 || n > len(s.lines) {
		return "", false
	}
	return s.lines[n-1], true
}

// span returns lines start through end joined by newlines.
func (s *source) span(start, end int) (string, bool) {
	if start < 1 || end < start || end > len(s.lines) {
		return "", false
	}
	return strings.Join(s.lines[start-1:end], "\n"), true
}

func (s *source) set(n int, text string) {
	s.lines[n-1] = text
}

// setSpan replaces lines start through end with text. Blank text drops
// the lines.
func (s *source) setSpan(start, end int, text string) {
	if strings.TrimSpace(text) == "" {
		for n := start; n <= end; n++ {
			s.remove(n)
		}
		return
	}
	s.set(start, text)
	for n := start + 1; n <= end; n++ {
		s.remove(n)
	}
}

// insertBefore inserts text as new lines before 1-based line n, above
// anything inserted there earlier.
func (s *source) insertBefore(n int, text ...string) {
	s.before[n] = append(append([]string(nil), text...), s.before[n]...)
}

func (s *source) remove(n int) {
	s.dropped[n] = true
}

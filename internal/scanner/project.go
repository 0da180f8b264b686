// Package scanner loads a PHP project into memory and populates the link,
// tag and placeholder registries from it.
package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/testlink/internal/config"
	"github.com/phobologic/testlink/internal/discover"
	"github.com/phobologic/testlink/internal/lang"
	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/parse"
)

// Project is the parsed universe of one run: every production and test file
// that could be read and parsed, plus a symbol index over them.
type Project struct {
	Root  string
	Files []*model.SourceFile

	classes map[string]classRef
	tests   map[string]*model.SourceFile // fluent test id → file
	prefix  map[string]bool              // fluent test id prefixes
}

type classRef struct {
	file  *model.SourceFile
	class *model.Class
}

// MethodRef locates a method declaration.
type MethodRef struct {
	File   *model.SourceFile
	Class  *model.Class
	Method *model.Method
}

// Load discovers, reads and parses the project under root. Files that are
// too large, unreadable or syntactically invalid are skipped.
func Load(ctx context.Context, root string, cfg *config.Config, logger *zap.Logger) (*Project, error) {
	entries, err := discover.Files(root, cfg)
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	entries = filterBySize(root, entries, cfg.MaxFileSize, logger)
	logger.Debug("discovered files", zap.Int("count", len(entries)))

	files, err := parseFiles(ctx, root, entries, logger)
	if err != nil {
		return nil, err
	}
	return NewProject(root, files), nil
}

// NewProject indexes already extracted files.
func NewProject(root string, files []*model.SourceFile) *Project {
	p := &Project{
		Root:    root,
		Files:   files,
		classes: make(map[string]classRef),
		tests:   make(map[string]*model.SourceFile),
		prefix:  make(map[string]bool),
	}
	for _, f := range files {
		for i := range f.Classes {
			c := &f.Classes[i]
			if _, dup := p.classes[c.FQCN]; !dup {
				p.classes[c.FQCN] = classRef{file: f, class: c}
			}
		}
		for _, t := range f.Tests {
			p.tests[t.ID] = f
			class, _ := model.SplitIdentifier(t.ID)
			p.prefix[class] = true
		}
	}
	return p
}

// ProductionFiles returns the production files in discovery order.
func (p *Project) ProductionFiles() []*model.SourceFile {
	return p.filesOf(model.Production)
}

// TestFiles returns the test files in discovery order.
func (p *Project) TestFiles() []*model.SourceFile {
	return p.filesOf(model.Test)
}

func (p *Project) filesOf(kind model.Kind) []*model.SourceFile {
	var out []*model.SourceFile
	for _, f := range p.Files {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// ProductionMethods returns the identifiers of every method declared in a
// concrete production class.
func (p *Project) ProductionMethods() []string {
	var out []string
	for _, f := range p.ProductionFiles() {
		for _, c := range f.Classes {
			if c.Abstract {
				continue
			}
			for _, m := range c.Methods {
				out = append(out, c.FQCN+"::"+m.Name)
			}
		}
	}
	return out
}

// ClassExists reports whether a class, or a fluent test file standing in for
// one, is declared under the fully qualified name.
func (p *Project) ClassExists(fqcn string) bool {
	if _, ok := p.classes[fqcn]; ok {
		return true
	}
	return p.prefix[fqcn]
}

// MemberExists reports whether class declares member. Fluent test names
// count as members of their file's identifier prefix.
func (p *Project) MemberExists(class, member string) bool {
	if ref, ok := p.classes[class]; ok {
		for _, m := range ref.class.Methods {
			if m.Name == member {
				return true
			}
		}
	}
	_, ok := p.tests[class+"::"+member]
	return ok
}

// Exists reports whether id names an existing class, method or test.
func (p *Project) Exists(id string) bool {
	class, member := model.SplitIdentifier(id)
	if member == "" {
		return p.ClassExists(class)
	}
	return p.MemberExists(class, member)
}

// Method looks up a method by its identifier.
func (p *Project) Method(id string) (MethodRef, bool) {
	class, member := model.SplitIdentifier(id)
	ref, ok := p.classes[class]
	if !ok || member == "" {
		return MethodRef{}, false
	}
	for i := range ref.class.Methods {
		if ref.class.Methods[i].Name == member {
			return MethodRef{File: ref.file, Class: ref.class, Method: &ref.class.Methods[i]}, true
		}
	}
	return MethodRef{}, false
}

// Locate returns the file and declaration line of a method.
func (p *Project) Locate(id string) (string, int, bool) {
	ref, ok := p.Method(id)
	if !ok {
		return "", 0, false
	}
	return ref.File.Path, ref.Method.Line, true
}

func filterBySize(root string, files []discover.FileEntry, maxSize int64, logger *zap.Logger) []discover.FileEntry {
	if maxSize <= 0 {
		return files
	}
	var kept []discover.FileEntry
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(root, f.Path))
		if err != nil {
			kept = append(kept, f) // keep if can't stat
			continue
		}
		if fi.Size() > maxSize {
			logger.Warn("skipping large file", zap.String("path", f.Path), zap.Int64("limit", maxSize))
			continue
		}
		kept = append(kept, f)
	}
	return kept
}

func parseFiles(ctx context.Context, root string, files []discover.FileEntry, logger *zap.Logger) ([]*model.SourceFile, error) {
	if len(files) == 0 {
		return nil, nil
	}
	php := lang.PHP()

	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > len(files) {
		numWorkers = len(files)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)

	indexed := make([]*model.SourceFile, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for range numWorkers {
		g.Go(func() error {
			// Each worker gets its own parser
			parser := php.NewParser()
			defer parser.Close()

			for idx := range work {
				if err := ctx.Err(); err != nil {
					return err
				}
				f := files[idx]
				source, err := os.ReadFile(filepath.Join(root, f.Path))
				if err != nil {
					logger.Debug("skipping unreadable file", zap.String("path", f.Path), zap.Error(err))
					continue
				}
				sf, ok := parse.ExtractFile(parser, source, f.Path, f.Kind)
				if !ok {
					logger.Debug("skipping unparseable file", zap.String("path", f.Path))
					continue
				}
				indexed[idx] = sf
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parsing files: %w", err)
	}

	// Collect results in original order
	var out []*model.SourceFile
	for _, sf := range indexed {
		if sf != nil {
			out = append(out, sf)
		}
	}
	return out, nil
}

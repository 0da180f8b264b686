package modifier

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/lang"
	"github.com/phobologic/testlink/internal/model"
)

// SyncOptions controls Sync.
type SyncOptions struct {
	DryRun bool
	// Prune removes #[TestedBy] declarations no test links back to.
	Prune bool
	// Force confirms Prune.
	Force bool
}

var testedByRe = regexp.MustCompile(`#\[\s*` + model.AttrTestedBy + `\(([^\]]*)\)\s*\]`)

// Sync applies a sync plan. Remove actions are ignored unless Prune is set,
// and Prune without Force fails before any file is read.
func (m *Modifier) Sync(actions []model.SyncAction, opts SyncOptions) (*model.ApplyResult, error) {
	if opts.Prune && !opts.Force {
		return nil, ErrPruneNotConfirmed
	}

	byFile := make(map[string][]model.SyncAction)
	for _, a := range actions {
		if a.Op == model.SyncRemove && !opts.Prune {
			continue
		}
		byFile[a.File] = append(byFile[a.File], a)
	}

	var pending []*fileEdit
	for _, file := range sortedFiles(byFile) {
		e, err := m.edit(file, func(src *source) []model.Change {
			return syncFile(src, byFile[file], m.logger)
		})
		if err != nil {
			return nil, err
		}
		if e != nil {
			pending = append(pending, e)
		}
	}
	return m.commit(pending, opts.DryRun)
}

func syncFile(src *source, actions []model.SyncAction, logger *zap.Logger) []model.Change {
	// Bottom-up; on the same line a removal runs before an insertion above it.
	sorted := append([]model.SyncAction(nil), actions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line > sorted[j].Line
		}
		return sorted[i].Op == model.SyncRemove && sorted[j].Op != model.SyncRemove
	})

	var changes []model.Change
	for _, a := range sorted {
		text, ok := src.line(a.Line)
		if !ok {
			logger.Warn("sync line out of range", zap.String("path", src.file), zap.Int("line", a.Line))
			continue
		}
		switch a.Op {
		case model.SyncAdd:
			class, member := model.SplitIdentifier(a.Test)
			attr := "#[" + model.AttrTestedBy + "(" + phpString(class) + ", " + phpString(member) + ")]"
			src.insertBefore(a.Line, lang.IndentOf(text)+attr)
			changes = append(changes, model.Change{File: src.file, Line: a.Line, After: attr})
		case model.SyncRemove:
			after, ok := removeTestedBy(text, a.Test)
			if !ok {
				logger.Warn("TestedBy declaration not found",
					zap.String("path", src.file), zap.Int("line", a.Line), zap.String("test", a.Test))
				continue
			}
			if strings.TrimSpace(after) == "" {
				src.remove(a.Line)
			} else {
				src.set(a.Line, after)
			}
			changes = append(changes, model.Change{File: src.file, Line: a.Line, Before: text, After: after})
		}
	}
	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Line < changes[j].Line })
	return changes
}

// removeTestedBy drops the #[TestedBy] attribute on text that names test.
func removeTestedBy(text, test string) (string, bool) {
	class, member := model.SplitIdentifier(test)
	for _, loc := range testedByRe.FindAllStringSubmatchIndex(text, -1) {
		if !namesTest(text[loc[2]:loc[3]], class, member) {
			continue
		}
		prefix, rest := text[:loc[0]], text[loc[1]:]
		if strings.TrimSpace(prefix+rest) == "" {
			return "", true
		}
		return prefix + strings.TrimLeft(rest, " \t"), true
	}
	return "", false
}

// namesTest reports whether the argument text of a #[TestedBy] refers to
// class::member. The class may be spelled short or through ::class.
func namesTest(args, class, member string) bool {
	if member != "" && !strings.Contains(args, "'"+member+"'") && !strings.Contains(args, `"`+member+`"`) &&
		!strings.Contains(args, "::"+member) {
		return false
	}
	return strings.Contains(args, model.ShortClassName(class))
}

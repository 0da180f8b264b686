package registry

import (
	"sort"

	"github.com/phobologic/testlink/internal/model"
)

// Tags indexes @see references by the context they were found in.
type Tags struct {
	production []model.Tag
	tests      []model.Tag
	seen       map[model.Tag]struct{}
}

// NewTags returns an empty tag registry.
func NewTags() *Tags {
	return &Tags{seen: make(map[model.Tag]struct{})}
}

// Add records tag. Adding an identical tag twice keeps one copy.
func (t *Tags) Add(tag model.Tag) {
	if _, dup := t.seen[tag]; dup {
		return
	}
	t.seen[tag] = struct{}{}
	if tag.Context == model.Production {
		t.production = append(t.production, tag)
	} else {
		t.tests = append(t.tests, tag)
	}
}

// Production returns tags found in production docblocks.
func (t *Tags) Production() []model.Tag {
	return sortTags(t.production)
}

// Tests returns tags found in test docblocks.
func (t *Tags) Tests() []model.Tag {
	return sortTags(t.tests)
}

// All returns every tag, production first.
func (t *Tags) All() []model.Tag {
	return append(t.Production(), t.Tests()...)
}

// Count returns the number of distinct tags.
func (t *Tags) Count() int {
	return len(t.seen)
}

func sortTags(tags []model.Tag) []model.Tag {
	out := append([]model.Tag{}, tags...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out
}

// Package discover finds the production and test PHP files of a project.
package discover

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/testlink/internal/config"
	"github.com/phobologic/testlink/internal/lang"
	"github.com/phobologic/testlink/internal/model"
)

// FileEntry represents a discovered source file.
type FileEntry struct {
	Path string // Relative to project root, slash separated
	Kind model.Kind
}

var skipDirs = map[string]struct{}{
	"vendor":       {},
	"node_modules": {},
	".git":         {},
	".hg":          {},
	".svn":         {},
	".idea":        {},
	"storage":      {},
	"build":        {},
	"dist":         {},
}

// Files discovers PHP files under root and classifies each as production or
// test code. Files that are neither are not returned.
func Files(root string, cfg *config.Config) ([]FileEntry, error) {
	gitFiles := gitLsFiles(root)
	var gi *ignore.GitIgnore
	if gitFiles == nil {
		gi = loadGitignore(root)
	}

	var results []FileEntry

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip errors
		}

		name := d.Name()

		if d.IsDir() {
			if path == root {
				return nil
			}
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}

		// Skip symlinks
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if gitFiles != nil {
			if _, ok := gitFiles[rel]; !ok {
				return nil
			}
		} else if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		if lang.ForExtension(filepath.Ext(name)) != "php" {
			return nil
		}
		if excluded(rel, cfg.Exclude) {
			return nil
		}

		kind, ok := Classify(rel, cfg)
		if !ok {
			return nil
		}

		results = append(results, FileEntry{Path: rel, Kind: kind})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})

	return results, nil
}

// Classify decides whether a slash-separated relative path is production or
// test code. Production paths live under a production directory and contain
// no vendor or tests segment; test paths live under a test directory and
// contain no vendor segment.
func Classify(rel string, cfg *config.Config) (model.Kind, bool) {
	segments := strings.Split(rel, "/")
	hasSegment := func(s string) bool {
		for _, seg := range segments[:len(segments)-1] {
			if seg == s {
				return true
			}
		}
		return false
	}
	if hasSegment("vendor") {
		return "", false
	}
	for _, dir := range cfg.Tests {
		if underDir(rel, dir) {
			return model.Test, true
		}
	}
	if hasSegment("tests") {
		return "", false
	}
	for _, dir := range cfg.Production {
		if underDir(rel, dir) {
			return model.Production, true
		}
	}
	return "", false
}

func underDir(rel, dir string) bool {
	dir = strings.Trim(filepath.ToSlash(filepath.Clean(dir)), "/")
	if dir == "" || dir == "." {
		return true
	}
	return strings.HasPrefix(rel, dir+"/")
}

func excluded(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	gi, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil
	}
	return gi
}

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/testlink/internal/config"
)

const (
	sentinelStart = "# testlink:start"
	sentinelEnd   = "# testlink:end"
)

func newInitCmd(o *options) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration to " + config.FileName,
		Long: `Write the default testlink configuration. The generated block is wrapped in
sentinel comments so later runs update it in place without touching anything
else in the file. Creates the file if it does not exist.

path defaults to <root>/` + config.FileName + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			section, err := generateSection()
			if err != nil {
				return err
			}

			// --dry-run with no path: just print the section itself.
			if dryRun && len(args) == 0 {
				_, _ = fmt.Fprintln(o.stdout, section)
				return nil
			}

			path := filepath.Join(o.root, config.FileName)
			if len(args) > 0 {
				path = args[0]
			}

			existing, err := os.ReadFile(path)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			updated := applySection(string(existing), section)

			if dryRun {
				_, _ = fmt.Fprint(o.stdout, updated)
				return nil
			}
			if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(o.stderr, "wrote testlink configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "print what would be written without modifying the file")
	return cmd
}

// generateSection returns the default configuration wrapped in sentinels.
func generateSection() (string, error) {
	data, err := config.Default().Marshal()
	if err != nil {
		return "", fmt.Errorf("rendering default config: %w", err)
	}
	return sentinelStart + "\n" + string(data) + sentinelEnd, nil
}

// applySection replaces the sentinel block in content with section, or
// appends section when content has none.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	if start >= 0 {
		if end := strings.Index(content[start:], sentinelEnd); end >= 0 {
			return content[:start] + section + content[start+end+len(sentinelEnd):]
		}
	}
	if content == "" {
		return section + "\n"
	}
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return content + "\n" + section + "\n"
}

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/testlink/internal/config"
)

// TestApplySectionCreate verifies that empty content becomes just the section.
func TestApplySectionCreate(t *testing.T) {
	t.Parallel()
	section := sentinelStart + "\nbody\n" + sentinelEnd
	got := applySection("", section)
	if got != section+"\n" {
		t.Errorf("applySection on empty content = %q", got)
	}
}

// TestApplySectionAppend verifies that existing content without a sentinel
// block is preserved and the section is appended after a blank line.
func TestApplySectionAppend(t *testing.T) {
	t.Parallel()
	existing := "# local overrides\nmax_file_size: 5000"
	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(existing, section)

	want := existing + "\n\n" + section + "\n"
	if got != want {
		t.Errorf("applySection:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

// TestApplySectionUpdate verifies that an existing sentinel block is replaced
// precisely, leaving surrounding content intact.
func TestApplySectionUpdate(t *testing.T) {
	t.Parallel()
	before := "# project notes\n\n"
	after := "\n\n# trailing comment\n"
	old := before + sentinelStart + "\nold content\n" + sentinelEnd + after

	section := sentinelStart + "\nnew content\n" + sentinelEnd
	got := applySection(old, section)

	if got != before+section+after {
		t.Errorf("applySection:\n%s", got)
	}
	if strings.Contains(got, "old content") {
		t.Error("old content should be replaced")
	}
}

// TestApplySectionUnterminated verifies that a start sentinel without an end
// is treated as no block.
func TestApplySectionUnterminated(t *testing.T) {
	t.Parallel()
	existing := sentinelStart + "\nstray\n"
	section := sentinelStart + "\nnew\n" + sentinelEnd
	got := applySection(existing, section)
	if !strings.HasPrefix(got, existing) || !strings.HasSuffix(got, section+"\n") {
		t.Errorf("applySection:\n%s", got)
	}
}

func TestGenerateSection(t *testing.T) {
	t.Parallel()
	section, err := generateSection()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(section, sentinelStart+"\n"))
	assert.True(t, strings.HasSuffix(section, "\n"+sentinelEnd))
	for _, key := range []string{"production:", "tests:", "exclude:", "max_file_size:"} {
		assert.Contains(t, section, key)
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	_, stderr, err := runCLI(t, "init", "-C", dir)
	require.NoError(t, err)
	assert.Contains(t, stderr, "wrote testlink configuration")

	cfg, err := config.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestInitUpdatesInPlace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# keep me\n"+sentinelStart+"\nproduction: [lib]\n"+sentinelEnd+"\n"), 0o644))

	_, _, err := runCLI(t, "init", "-C", dir, path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got := string(data)
	assert.True(t, strings.HasPrefix(got, "# keep me\n"+sentinelStart))
	assert.NotContains(t, got, "[lib]")
	assert.Equal(t, 1, strings.Count(got, sentinelStart))
}

func TestInitDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	stdout, _, err := runCLI(t, "init", "-C", dir, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, sentinelStart)
	assert.Contains(t, stdout, "max_file_size: 1000000")

	_, err = os.Stat(filepath.Join(dir, config.FileName))
	assert.True(t, os.IsNotExist(err), "dry run must not write the file")
}

package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/phobologic/testlink/internal/config"
	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const userService = `<?php
namespace App\Services;

use Tests\Unit\UserServiceTest;

/**
 * @see \Tests\Unit\UserServiceTest
 */
class UserService
{
    #[TestedBy(UserServiceTest::class, 'test_creates_user')]
    #[TestedBy('Tests\Feature\UserTest::creates user')]
    public function create(): void {}

    /**
     * @see UserServiceTest::test_missing
     * @see @@user-delete
     */
    #[TestedBy('@user-delete')]
    public function delete(): void {}
}
`

const userServiceTest = `<?php
namespace Tests\Unit;

use App\Services\UserService;

class UserServiceTest
{
    /**
     * @see UserService::create
     */
    #[LinksAndCovers(UserService::class, 'create')]
    public function test_creates_user(): void {}

    #[LinksAndCovers('@user-delete')]
    public function test_deletes_user(): void {}

    #[Links(UserService::class)]
    public function test_touches_service(): void {}

    public function helper(): void {}
}
`

const userFluentTest = `<?php

use App\Services\UserService;

describe('users', function () {
    test('creates user', function () {})
        ->linksAndCovers(UserService::class.'::create')
        ->group('slow');

    it('deletes user', fn () => true)->links('@user-delete');
});
`

const broken = `<?php
class Broken {
    public function oops( {
}
`

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func loadFixture(t *testing.T) *Project {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "src/Services/UserService.php", userService)
	writeFile(t, dir, "src/Broken.php", broken)
	writeFile(t, dir, "tests/Unit/UserServiceTest.php", userServiceTest)
	writeFile(t, dir, "tests/Feature/UserTest.php", userFluentTest)

	p, err := Load(context.Background(), dir, config.Default(), zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestLoadSkipsBrokenFiles(t *testing.T) {
	t.Parallel()

	p := loadFixture(t)
	paths := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{
		"src/Services/UserService.php",
		"tests/Feature/UserTest.php",
		"tests/Unit/UserServiceTest.php",
	}, paths)
	assert.Len(t, p.ProductionFiles(), 1)
	assert.Len(t, p.TestFiles(), 2)
}

func TestLoadSkipsLargeFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/Services/UserService.php", userService)
	cfg := config.Default()
	cfg.MaxFileSize = 10

	p, err := Load(context.Background(), dir, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, p.Files)
}

func TestLoadCancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/Services/UserService.php", userService)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Load(ctx, dir, config.Default(), zap.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSymbolIndex(t *testing.T) {
	t.Parallel()

	p := loadFixture(t)

	assert.True(t, p.ClassExists(`App\Services\UserService`))
	assert.True(t, p.ClassExists(`Tests\Feature\UserTest`))
	assert.False(t, p.ClassExists(`App\Services\Missing`))

	assert.True(t, p.Exists(`App\Services\UserService::create`))
	assert.True(t, p.Exists(`Tests\Feature\UserTest::users > creates user`))
	assert.False(t, p.Exists(`Tests\Unit\UserServiceTest::test_missing`))

	ref, ok := p.Method(`App\Services\UserService::delete`)
	require.True(t, ok)
	assert.Equal(t, "delete", ref.Method.Name)
	assert.Equal(t, "src/Services/UserService.php", ref.File.Path)

	file, line, ok := p.Locate(`App\Services\UserService::create`)
	require.True(t, ok)
	assert.Equal(t, "src/Services/UserService.php", file)
	assert.Equal(t, 11, line)

	_, ok = p.Method(`App\Services\UserService`)
	assert.False(t, ok)
}

func TestLinkScanner(t *testing.T) {
	t.Parallel()

	p := loadFixture(t)
	links := registry.NewLinks()
	NewLinkScanner(p, zap.NewNop()).Scan(links)

	const create = `App\Services\UserService::create`
	assert.ElementsMatch(t, []string{
		`Tests\Unit\UserServiceTest::test_creates_user`,
		`Tests\Feature\UserTest::users > creates user`,
	}, links.TestsFor(create))
	assert.True(t, links.IsCovering(`Tests\Unit\UserServiceTest::test_creates_user`, create))

	// Class-level non-covering link.
	assert.Equal(t, []string{`App\Services\UserService`},
		links.MethodsFor(`Tests\Unit\UserServiceTest::test_touches_service`))
	assert.False(t, links.IsCovering(`Tests\Unit\UserServiceTest::test_touches_service`, `App\Services\UserService`))

	// Placeholders are not links.
	assert.Empty(t, links.MethodsFor(`Tests\Unit\UserServiceTest::test_deletes_user`))
	assert.Empty(t, links.ProductionTestsFor(`App\Services\UserService::delete`))

	assert.ElementsMatch(t, []string{
		`Tests\Unit\UserServiceTest::test_creates_user`,
		`Tests\Feature\UserTest::creates user`,
	}, links.ProductionTestsFor(create))

	decls := links.Declarations(`Tests\Feature\UserTest::users > creates user`, create)
	mechanisms := make([]model.Mechanism, 0, len(decls))
	for _, d := range decls {
		mechanisms = append(mechanisms, d.Mechanism)
	}
	assert.ElementsMatch(t, []model.Mechanism{model.MechanismRuntime, model.MechanismChain}, mechanisms)
}

func TestTagScanner(t *testing.T) {
	t.Parallel()

	p := loadFixture(t)
	tags := registry.NewTags()
	NewTagScanner(p).Scan(tags)

	prod := tags.Production()
	require.Len(t, prod, 2)
	assert.Equal(t, `Tests\Unit\UserServiceTest`, prod[0].Resolved)
	assert.Equal(t, `App\Services\UserService`, prod[0].Enclosing)
	assert.Equal(t, 7, prod[0].Line)
	assert.Equal(t, `Tests\Unit\UserServiceTest::test_missing`, prod[1].Resolved)
	assert.Equal(t, 16, prod[1].Line)

	tests := tags.Tests()
	require.Len(t, tests, 1)
	assert.Equal(t, "UserService::create", tests[0].Reference)
	assert.Equal(t, `App\Services\UserService::create`, tests[0].Resolved)
	assert.Equal(t, model.Test, tests[0].Context)
}

func TestPlaceholderScanner(t *testing.T) {
	t.Parallel()

	p := loadFixture(t)
	reg := registry.NewPlaceholders()
	NewPlaceholderScanner(p, zap.NewNop()).Scan(reg)

	assert.Equal(t, []string{"@@user-delete", "@user-delete"}, reg.Markers())

	doc := reg.Production("@@user-delete")
	require.Len(t, doc, 1)
	assert.Equal(t, model.SiteDocblock, doc[0].Site)
	assert.Equal(t, 17, doc[0].Line)

	prod := reg.Production("@user-delete")
	require.Len(t, prod, 1)
	assert.Equal(t, `App\Services\UserService::delete`, prod[0].Identifier)
	assert.Equal(t, model.SiteAttribute, prod[0].Site)

	tests := reg.Tests("@user-delete")
	require.Len(t, tests, 2)
	byFramework := map[model.Framework]model.Placeholder{}
	for _, e := range tests {
		byFramework[e.Framework] = e
	}
	assert.Equal(t, `Tests\Unit\UserServiceTest::test_deletes_user`, byFramework[model.ClassBased].Identifier)
	fluent := byFramework[model.FluentChain]
	assert.Equal(t, `Tests\Feature\UserTest::users > it deletes user`, fluent.Identifier)
	assert.Equal(t, model.SiteChain, fluent.Site)
	assert.Equal(t, model.ChainLinks, fluent.Declarator)
}

func TestPlaceholderScannerMultiLineAndClassLevel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/Services/UserService.php", `<?php
namespace App\Services;

class UserService
{
    /**
     * Creates a user.
     */
    #[TestedBy(
        '@A'
    )]
    public function create(): void {}
}
`)
	writeFile(t, dir, "tests/Unit/UserServiceTest.php", `<?php
namespace Tests\Unit;

#[LinksAndCovers('@A')]
class UserServiceTest
{
    public function test_one(): void {}

    public function test_two(): void {}

    public function helper(): void {}
}
`)
	p, err := Load(context.Background(), dir, config.Default(), zap.NewNop())
	require.NoError(t, err)
	reg := registry.NewPlaceholders()
	NewPlaceholderScanner(p, zap.NewNop()).Scan(reg)

	prod := reg.Production("@A")
	require.Len(t, prod, 1)
	assert.Equal(t, 10, prod[0].Line, "line holding the marker")
	assert.Equal(t, model.Anchor{
		StartLine:  9,
		EndLine:    11,
		DeclLine:   9,
		Indent:     "    ",
		DocLine:    6,
		DocEndLine: 8,
	}, prod[0].Anchor)

	tests := reg.Tests("@A")
	ids := make([]string, 0, len(tests))
	for _, e := range tests {
		ids = append(ids, e.Identifier)
		assert.Equal(t, 4, e.Line)
		assert.Equal(t, 4, e.Anchor.DeclLine)
		assert.Equal(t, model.ClassBased, e.Framework)
	}
	assert.Equal(t, []string{
		`Tests\Unit\UserServiceTest::test_one`,
		`Tests\Unit\UserServiceTest::test_two`,
	}, ids)
}

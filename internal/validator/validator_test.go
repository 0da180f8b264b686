package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/testlink/internal/model"
	"github.com/phobologic/testlink/internal/registry"
)

type fakeSymbols map[string]int // id → declaration line

func (f fakeSymbols) Exists(id string) bool {
	_, ok := f[id]
	return ok
}

func (f fakeSymbols) Locate(id string) (string, int, bool) {
	line, ok := f[id]
	if !ok {
		return "", 0, false
	}
	return "src/Service.php", line, true
}

const (
	create = `App\Service::create`
	remove = `App\Service::remove`
	unit   = `Tests\ServiceTest::test_create`
	fluent = `Tests\Feature\ServiceTest::service > creates`
)

func attr(line int) model.Declaration {
	return model.Declaration{Mechanism: model.MechanismAttribute, Declarator: model.AttrLinksAndCovers, File: "tests/ServiceTest.php", Line: line}
}

func testedBy(line int) model.Declaration {
	return model.Declaration{Mechanism: model.MechanismTestedBy, Declarator: model.AttrTestedBy, File: "src/Service.php", Line: line}
}

func TestValidateEmptyRegistries(t *testing.T) {
	t.Parallel()

	r := Validate(registry.NewLinks(), registry.NewTags(), registry.NewPlaceholders(), fakeSymbols{})
	assert.True(t, r.Valid)
	assert.Empty(t, r.Duplicates)
	assert.NotNil(t, r.Duplicates)
	assert.Zero(t, r.Stats.TotalLinks)
	assert.Zero(t, r.ErrorCount())
	assert.Zero(t, r.WarningCount())
}

func TestValidateReciprocalLinks(t *testing.T) {
	t.Parallel()

	links := registry.NewLinks()
	links.Register(unit, create, true, attr(10))
	links.RegisterProduction(create, unit, testedBy(5))

	r := Validate(links, registry.NewTags(), registry.NewPlaceholders(), fakeSymbols{})
	assert.True(t, r.Valid)
	assert.Equal(t, 1, r.Stats.TotalLinks)
	assert.Equal(t, 1, r.Stats.ByMechanism[model.MechanismAttribute])
	assert.Equal(t, 1, r.Stats.ProductionDeclarations)
}

func TestValidateMissingInProduction(t *testing.T) {
	t.Parallel()

	links := registry.NewLinks()
	links.Register(unit, create, true, attr(10))
	// Non-covering links need no #[TestedBy].
	links.Register(unit, remove, false, attr(11))
	// Neither do class-level links.
	links.Register(unit, `App\Service`, true, attr(12))

	r := Validate(links, nil, nil, fakeSymbols{})
	assert.False(t, r.Valid)
	require.Len(t, r.MissingInProduction, 1)
	p := r.MissingInProduction[0]
	assert.Equal(t, unit, p.Test)
	assert.Equal(t, create, p.Method)
	assert.Equal(t, "tests/ServiceTest.php", p.File)
	assert.Equal(t, 10, p.Line)
}

func TestValidateMissingInTests(t *testing.T) {
	t.Parallel()

	links := registry.NewLinks()
	links.RegisterProduction(create, unit, testedBy(5))

	r := Validate(links, nil, nil, fakeSymbols{})
	assert.False(t, r.Valid)
	require.Len(t, r.MissingInTests, 1)
	assert.Equal(t, 5, r.MissingInTests[0].Line)
	assert.Equal(t, 1, r.ErrorCount())
}

func TestValidateClassLevelTestedBy(t *testing.T) {
	t.Parallel()

	links := registry.NewLinks()
	links.Register(unit, create, true, attr(10))
	links.RegisterProduction(create, `Tests\ServiceTest`, testedBy(5))

	r := Validate(links, nil, nil, fakeSymbols{})
	assert.True(t, r.Valid, "%+v", r)
}

func TestValidateDuplicates(t *testing.T) {
	t.Parallel()

	links := registry.NewLinks()
	links.RegisterProduction(create, fluent, testedBy(5))

	// A fluent chain seen both statically and at runtime is one declaration.
	links.Register(fluent, create, true, model.Declaration{Mechanism: model.MechanismChain, Declarator: model.ChainLinksCovers, File: "tests/Feature/ServiceTest.php", Line: 8})
	links.ObserveChainLink(fluent, create, true)

	r := Validate(links, nil, nil, fakeSymbols{})
	assert.Empty(t, r.Duplicates)
	assert.Equal(t, 1, r.Stats.ByMechanism[model.MechanismChain])
	assert.Zero(t, r.Stats.ByMechanism[model.MechanismRuntime])

	// Two chain calls are one mechanism.
	links.Register(fluent, create, false, model.Declaration{Mechanism: model.MechanismChain, Declarator: model.ChainLinks, File: "tests/Feature/ServiceTest.php", Line: 9})
	r = Validate(links, nil, nil, fakeSymbols{})
	assert.Empty(t, r.Duplicates)

	links.Register(fluent, create, true, model.Declaration{Mechanism: model.MechanismAttribute, Declarator: model.AttrLinksAndCovers, File: "tests/Feature/ServiceTest.php", Line: 12})
	r = Validate(links, nil, nil, fakeSymbols{})
	require.Len(t, r.Duplicates, 1)
	assert.Len(t, r.Duplicates[0].Declarations, 3)
	assert.True(t, r.Valid, "duplicates are warnings")
	assert.Equal(t, 1, r.WarningCount())
}

func TestValidateOrphanTags(t *testing.T) {
	t.Parallel()

	tags := registry.NewTags()
	tags.Add(model.Tag{Reference: "ServiceTest::test_create", Resolved: unit, File: "src/Service.php", Line: 3, Context: model.Production})
	tags.Add(model.Tag{Reference: "Service::gone", Resolved: `App\Service::gone`, File: "tests/ServiceTest.php", Line: 4, Context: model.Test})
	tags.Add(model.Tag{Reference: "Missing", Resolved: `App\Missing`, File: "tests/ServiceTest.php", Line: 5, Context: model.Test})

	symbols := fakeSymbols{unit: 1, `App\Service`: 1}
	r := Validate(registry.NewLinks(), tags, nil, symbols)
	assert.False(t, r.Valid)
	require.Len(t, r.OrphanTags, 2)
	assert.Equal(t, `App\Service::gone`, r.OrphanTags[0].Resolved)
	assert.Equal(t, `App\Missing`, r.OrphanTags[1].Resolved)
	assert.Equal(t, 3, r.Stats.TotalTags)
	assert.Equal(t, 2, r.Stats.OrphanTags)
}

func TestValidateUnresolvedPlaceholders(t *testing.T) {
	t.Parallel()

	ph := registry.NewPlaceholders()
	ph.Add(model.Placeholder{Marker: "@a", Identifier: create, Kind: model.Production})
	ph.Add(model.Placeholder{Marker: "@a", Identifier: unit, Kind: model.Test, Framework: model.ClassBased})
	ph.Add(model.Placeholder{Marker: "@b", Identifier: fluent, Kind: model.Test, Framework: model.FluentChain})

	r := Validate(registry.NewLinks(), nil, ph, fakeSymbols{})
	assert.True(t, r.Valid)
	assert.Equal(t, []model.PlaceholderCount{
		{Marker: "@a", Production: 1, Tests: 1},
		{Marker: "@b", Production: 0, Tests: 1},
	}, r.UnresolvedPlaceholders)
	assert.Equal(t, 3, r.Stats.Placeholders)
}

func TestPlanSync(t *testing.T) {
	t.Parallel()

	links := registry.NewLinks()
	links.Register(unit, create, true, attr(10))
	links.Register(fluent, create, true, model.Declaration{Mechanism: model.MechanismChain})
	links.RegisterProduction(create, fluent, testedBy(7))
	links.RegisterProduction(remove, unit, testedBy(14))
	// Unknown methods cannot be edited.
	links.Register(unit, `App\Gone::method`, true, attr(11))

	plan := PlanSync(links, fakeSymbols{create: 8, remove: 15})
	assert.Equal(t, []model.SyncAction{
		{Op: model.SyncAdd, File: "src/Service.php", Line: 8, Method: create, Test: unit},
		{Op: model.SyncRemove, File: "src/Service.php", Line: 14, Method: remove, Test: unit},
	}, plan)
}

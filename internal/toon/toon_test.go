package toon

import (
	"strings"
	"testing"

	"github.com/phobologic/testlink/internal/model"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"true keyword", "true", `"true"`},
		{"Null keyword", "Null", `"Null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"marker", "@user-create", "@user-create"},
		{"dash prefix", "-foo", `"-foo"`},
		{"path", "src/Services/UserService.php", "src/Services/UserService.php"},
		{"method id", `App\User::create`, `"App\\User::create"`},
		{"grouped test name", "users > creates user", "users > creates user"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeReport(t *testing.T) {
	t.Parallel()

	r := &model.Report{
		Valid: false,
		MissingInProduction: []model.Problem{
			{Test: `Tests\UserTest::test_create`, Method: `App\User::create`, File: "tests/UserTest.php", Line: 12},
		},
		UnresolvedPlaceholders: []model.PlaceholderCount{{Marker: "@a", Production: 1, Tests: 0}},
		Stats: model.Stats{
			TotalLinks:  1,
			ByMechanism: map[model.Mechanism]int{model.MechanismChain: 2, model.MechanismAttribute: 1},
		},
	}

	got := EncodeReport(r)
	for _, want := range []string{
		"valid: false",
		"errors: 1",
		"warnings: 1",
		"links: 1",
		"mechanisms[2]{mechanism,links}:\n  attribute,1\n  chain,2",
		"missing_in_production[1]{test,method,file,line}:\n  \"Tests\\\\UserTest::test_create\",\"App\\\\User::create\",tests/UserTest.php,12",
		"missing_in_tests[0]{test,method,file,line}:",
		"unresolved_placeholders[1]{marker,production,tests}:\n  @a,1,0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q\n%s", want, got)
		}
	}
}

func TestEncodeResolution(t *testing.T) {
	t.Parallel()

	res := &model.Resolution{
		Actions: []model.Action{{
			Marker:     "@a",
			Production: model.Placeholder{Identifier: `App\User::create`},
			Test:       model.Placeholder{Identifier: "Tests\\UserTest::creates user", Framework: model.FluentChain},
		}},
		Errors: []string{"@b: orphan, no test"},
	}

	got := EncodeResolution(res)
	want := "actions[1]{marker,production,test,framework}:\n" +
		"  @a,\"App\\\\User::create\",\"Tests\\\\UserTest::creates user\",fluent-chain\n" +
		"errors[1]:\n" +
		"  - \"@b: orphan, no test\"\n" +
		"warnings[0]:"
	if got != want {
		t.Errorf("EncodeResolution:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestEncodeApply(t *testing.T) {
	t.Parallel()

	got := EncodeApply(&model.ApplyResult{
		DryRun:        true,
		ModifiedFiles: []string{"src/User.php"},
		Changes: []model.Change{
			{File: "src/User.php", Line: 7, Marker: "@a", After: "    #[TestedBy('T', 'a')]\n    #[TestedBy('T', 'b')]"},
		},
	})
	for _, want := range []string{
		"dry_run: true",
		"modified_files[1]:\n  - src/User.php",
		"changes[1]{file,line,marker,after}:\n  src/User.php,7,@a,\"    #[TestedBy('T', 'a')]\\n    #[TestedBy('T', 'b')]\"",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("apply output missing %q\n%s", want, got)
		}
	}
}

func TestEncodeCoverage(t *testing.T) {
	t.Parallel()

	got := EncodeCoverage([]model.MethodCoverage{
		{Method: "A::m", Covering: []string{"T::a"}, Incidental: []string{"T::b"}, Declared: []string{"T::a"}},
		{Method: "A::n"},
	})
	want := "methods[2]{method,covering,incidental,declared}:\n" +
		"  \"A::m\",1,1,1\n" +
		"  \"A::n\",0,0,0\n" +
		"links[2]{method,test,relation}:\n" +
		"  \"A::m\",\"T::a\",covering\n" +
		"  \"A::m\",\"T::b\",incidental"
	if got != want {
		t.Errorf("EncodeCoverage:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

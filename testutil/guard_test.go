package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) bool
		in   string
		want bool
	}{
		{"module root", ModuleImport, "raffleledger", true},
		{"module package", ModuleImport, "raffleledger/pkg/domain", true},
		{"lookalike", ModuleImport, "raffleledgerx/pkg", false},
		{"stdlib", ModuleImport, "fmt", false},
		{"internal", InternalImportForbidden, "raffleledger/internal/core", true},
		{"pkg", InternalImportForbidden, "raffleledger/pkg/domain", false},
		{"infra", InfraImportForbidden, "raffleledger/internal/infra/blob/s3", true},
		{"gateway", InfraImportForbidden, "raffleledger/internal/blob", false},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Fatalf("%s: f(%q)=%v want %v", c.name, c.in, got, c.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package tmp\n\nimport (\n\t\"fmt\"\n\t\"raffleledger/internal/core\"\n)\n\nvar _ = fmt.Sprint\nvar _ core.Option\n")
	writeFile(t, dir, "b_test.go", "package tmp\n\nimport \"raffleledger/internal/infra/blob/fs\"\n")
	writeFile(t, dir, "notes.txt", "import \"raffleledger/internal/x\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "raffleledger/internal/core (in a.go)") {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, InfraImportForbidden, "test files are skipped")
}

func TestDirectImportViolationsErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected missing directory error")
	}
	dir := t.TempDir()
	writeFile(t, dir, "broken.go", "package tmp\nimport (")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

package sqlite

import (
	"go/build"
	"strings"
	"testing"
)

var allowedInternalImports = map[string]struct{}{
	"raffleledger/pkg/domain":                           {},
	"raffleledger/internal/infra/persistence/sqlstore":  {},
	"raffleledger/internal/infra/persistence/sqlbundle": {},
}

func TestImportsStayWithinPersistenceLayer(t *testing.T) {
	pkg, err := build.Default.ImportDir(".", 0)
	if err != nil {
		t.Fatalf("import dir: %v", err)
	}
	for _, imp := range pkg.Imports {
		if !strings.HasPrefix(imp, "raffleledger/") {
			continue
		}
		if _, ok := allowedInternalImports[imp]; ok {
			continue
		}
		t.Fatalf("unexpected dependency: %s", imp)
	}
}

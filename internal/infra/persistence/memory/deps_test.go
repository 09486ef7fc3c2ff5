package memory

import (
	"testing"

	"raffleledger/testutil"
)

func TestImportsAreDomainOrStdlib(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(path string) bool {
		return testutil.ModuleImport(path) && path != "raffleledger/pkg/domain"
	}, "the memory engine depends only on the domain contract")
}

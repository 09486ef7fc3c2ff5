package httpapi

import (
	"testing"

	"raffleledger/testutil"
)

func TestHandlersReachStorageThroughTheService(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "transport must go through core and blob")
}

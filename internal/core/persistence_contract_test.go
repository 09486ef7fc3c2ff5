package core

import (
	"go/types"
	"slices"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestPersistentStoreImplementationsStayInInfra fails when a PersistentStore
// implementation appears outside the persistence packages. Adding a backend
// means extending this list.
func TestPersistentStoreImplementationsStayInInfra(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes}
	pkgs, err := packages.Load(cfg, "raffleledger/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	var contract *types.Interface
	for _, p := range pkgs {
		if p.PkgPath != "raffleledger/pkg/domain" {
			continue
		}
		obj := p.Types.Scope().Lookup("PersistentStore")
		if obj == nil {
			t.Fatalf("domain.PersistentStore not found")
		}
		iface, ok := obj.Type().Underlying().(*types.Interface)
		if !ok {
			t.Fatalf("domain.PersistentStore is not an interface")
		}
		contract = iface
	}
	if contract == nil {
		t.Fatalf("failed to resolve PersistentStore")
	}

	allowed := []string{
		"raffleledger/internal/infra/persistence/memory",
		"raffleledger/internal/infra/persistence/sqlstore",
		"raffleledger/internal/infra/persistence/sqlite",
		"raffleledger/internal/infra/persistence/postgres",
	}
	var unexpected []string
	for _, p := range pkgs {
		if p.Types == nil {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			named, ok := scope.Lookup(name).Type().(*types.Named)
			if !ok {
				continue
			}
			if _, isStruct := named.Underlying().(*types.Struct); !isStruct {
				continue
			}
			if types.Implements(types.NewPointer(named), contract) && !slices.Contains(allowed, p.PkgPath) {
				unexpected = append(unexpected, p.PkgPath+"."+name)
			}
		}
	}
	if len(unexpected) > 0 {
		t.Fatalf("unexpected PersistentStore implementations: %v", unexpected)
	}
}

package domain

import (
	"strings"
	"testing"

	"storagecore/testutil"
)

// TestDomainBoundaryGuards enforces that the domain package stays pure: no
// infrastructure packages and no third-party libraries, so every consumer can
// depend on it without dragging in drivers.
func TestDomainBoundaryGuards(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", func(ip string) bool {
		return testutil.InternalImportForbidden(ip) || testutil.ThirdPartyImportForbidden(ip)
	}, "pkg/domain must only import the standard library")

	// Standard library internals show up in go list output, so the
	// transitive guard matches only this module's internal tree.
	testutil.AssertNoTransitiveDependency(t, ".", func(p string) bool {
		return strings.HasPrefix(p, "storagecore/internal/")
	}, "pkg/domain must not depend on internal packages")
}

package labeling

import (
	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

// ShouldScan decides whether a record needs a fresh scan against the given
// table snapshot.
//
// A record carrying a marker timestamp at or after the table's effective
// epoch is already current and is skipped; the boundary is inclusive, so a
// marker equal to the epoch skips. A table without an epoch never skips a
// record on this basis. Whether a table exists at all is a batch-level
// precondition checked by the service, not here.
func ShouldScan(resource map[string]interface{}, table *rules.RuleTable) bool {
	if table == nil || !table.HasEpoch {
		return true
	}
	marked, ok := fhir.LabeledAt(fhir.MetaOf(resource))
	if !ok {
		return true
	}
	return marked.Before(table.Epoch)
}

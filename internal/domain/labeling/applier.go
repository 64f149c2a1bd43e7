package labeling

import (
	"time"

	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

// Applier stamps classification labels and the reprocessing marker onto a
// record. All side effects are confined to the record passed in.
type Applier struct {
	now func() time.Time
}

func NewApplier() *Applier {
	return &Applier{now: time.Now}
}

// Apply appends the restricted-confidentiality label and the matched topic
// labels to the record's security labels, each at most once, then replaces
// the reprocessing marker with a fresh timestamp. The marker is refreshed
// even when nothing matched, so the record is not rescanned until the epoch
// advances again. Apply is idempotent for a fixed matched set: a second run
// changes nothing but the marker timestamp.
func (a *Applier) Apply(resource map[string]interface{}, matched []rules.TopicLabel) {
	meta := fhir.EnsureMeta(resource)

	if len(matched) > 0 {
		// A record already classified at restricted or stricter keeps its
		// existing confidentiality label.
		if !fhir.MeetsConfidentiality(meta, fhir.LabelRestricted) {
			fhir.AppendCoding(meta, "security", fhir.RestrictedLabel)
		}
		for _, label := range matched {
			if fhir.HasCoding(meta, "security", label.System, label.Code) {
				continue
			}
			fhir.AppendCoding(meta, "security", fhir.Coding{
				System:  label.System,
				Code:    label.Code,
				Display: label.Display,
			})
		}
	}

	fhir.RemoveCodings(meta, "tag", fhir.LabeledTagSystem)
	fhir.AppendCoding(meta, "tag", fhir.LabeledTag(a.now()))
}

package labeling

import (
	"fmt"
	"sort"

	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

// Mode selects the output shape of a labeling batch.
type Mode string

const (
	// ModeNarrowed emits only the records that were actually scanned, each
	// with an update directive, as a transaction Bundle.
	ModeNarrowed Mode = "narrowed"
	// ModeFull emits every input record unchanged in position as a
	// collection Bundle, annotated in place where scanned.
	ModeFull Mode = "full"
)

// ParseMode validates a mode string; empty defaults to full.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNarrowed, ModeFull:
		return Mode(s), nil
	case "":
		return ModeFull, nil
	}
	return "", fmt.Errorf("invalid mode %q: expected narrowed or full", s)
}

// UnsupportedPolicy controls how full-mode output treats entries whose
// resource the engine cannot process.
type UnsupportedPolicy string

const (
	// UnsupportedSilent passes unsupported entries through untouched.
	UnsupportedSilent UnsupportedPolicy = "silent"
	// UnsupportedReport annotates unsupported entries with a warning
	// outcome in full-mode output.
	UnsupportedReport UnsupportedPolicy = "report"
)

// Disposition is a record's terminal state after the gate and scanner ran.
type Disposition int

const (
	DispositionScanned Disposition = iota
	DispositionSkipped
	DispositionUnsupported
)

// Outcome is the per-record result consumed by the assembler.
type Outcome struct {
	Entry       fhir.BundleEntry
	Disposition Disposition
	Matched     []rules.TopicLabel
}

// Counters reports what a batch did. Unsupported records count in none of
// the three.
type Counters struct {
	Analyzed int `json:"analyzed"`
	Labeled  int `json:"labeled"`
	Skipped  int `json:"skipped"`
}

// Result is the assembled output of one labeling batch.
type Result struct {
	Bundle   *fhir.Bundle
	Labels   []fhir.Coding
	Counters Counters
}

// Assembler aggregates per-record outcomes into the output collection.
type Assembler struct {
	policy UnsupportedPolicy
}

func NewAssembler(policy UnsupportedPolicy) *Assembler {
	if policy == "" {
		policy = UnsupportedSilent
	}
	return &Assembler{policy: policy}
}

// Assemble builds the output Bundle for the selected mode, the deduplicated
// collection-level label set, and the batch counters. Aggregation is a
// single-writer reduction over outcomes the workers produced independently.
func (a *Assembler) Assemble(mode Mode, outcomes []Outcome) *Result {
	result := &Result{}
	entries := make([]fhir.BundleEntry, 0, len(outcomes))

	for _, o := range outcomes {
		switch o.Disposition {
		case DispositionScanned:
			result.Counters.Analyzed++
			if len(o.Matched) > 0 {
				result.Counters.Labeled++
			}
			entry := o.Entry
			if mode == ModeNarrowed {
				entry.Request = updateDirective(entry.Resource)
			}
			entries = append(entries, entry)
		case DispositionSkipped:
			result.Counters.Skipped++
			if mode == ModeFull {
				entries = append(entries, o.Entry)
			}
		case DispositionUnsupported:
			if mode != ModeFull {
				continue
			}
			entry := o.Entry
			if a.policy == UnsupportedReport {
				entry.Response = &fhir.BundleResponse{
					Status: "422",
					Outcome: fhir.NewOperationOutcome(fhir.IssueSeverityWarning,
						fhir.IssueTypeNotSupported, "resource type not supported for labeling"),
				}
			}
			entries = append(entries, entry)
		}
	}

	if mode == ModeNarrowed {
		result.Bundle = fhir.NewTransactionBundle(entries)
	} else {
		result.Bundle = fhir.NewCollectionBundle(entries)
	}
	total := len(entries)
	result.Bundle.Total = &total

	result.Labels = collectionLabels(entries)
	if len(result.Labels) > 0 {
		result.Bundle.Meta = &fhir.Meta{Security: result.Labels}
	}
	return result
}

// updateDirective builds the PUT request referencing a scanned record.
func updateDirective(resource map[string]interface{}) *fhir.BundleRequest {
	rt := fhir.ResourceTypeOf(resource)
	id := fhir.ResourceIDOf(resource)
	if rt == "" || id == "" {
		return nil
	}
	return &fhir.BundleRequest{Method: "PUT", URL: fhir.FormatReference(rt, id)}
}

// collectionLabels unions the emitted records' security labels, deduplicated
// by (system, code) and sorted for a stable output, independent of record
// order.
func collectionLabels(entries []fhir.BundleEntry) []fhir.Coding {
	type key struct{ system, code string }
	seen := map[key]fhir.Coding{}
	for _, entry := range entries {
		meta := fhir.MetaOf(entry.Resource)
		for _, c := range fhir.CodingsOf(meta, "security") {
			k := key{c.System, c.Code}
			if _, ok := seen[k]; !ok {
				seen[k] = c
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	labels := make([]fhir.Coding, 0, len(seen))
	for _, c := range seen {
		labels = append(labels, c)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].System != labels[j].System {
			return labels[i].System < labels[j].System
		}
		return labels[i].Code < labels[j].Code
	})
	return labels
}

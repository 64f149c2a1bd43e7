package labeling

import (
	"testing"

	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

func entryFor(resourceType, id string, security ...fhir.Coding) fhir.BundleEntry {
	resource := map[string]interface{}{
		"resourceType": resourceType,
		"id":           id,
	}
	if len(security) > 0 {
		meta := fhir.EnsureMeta(resource)
		for _, c := range security {
			fhir.AppendCoding(meta, "security", c)
		}
	}
	return fhir.BundleEntry{Resource: resource}
}

func TestAssembleNarrowedEmitsScannedOnly(t *testing.T) {
	psy := fhir.Coding{System: fhir.ActCodeSystem, Code: "PSY"}
	outcomes := []Outcome{
		{Entry: entryFor("Condition", "c1", fhir.RestrictedLabel, psy), Disposition: DispositionScanned,
			Matched: []rules.TopicLabel{{System: psy.System, Code: psy.Code}}},
		{Entry: entryFor("Observation", "o1"), Disposition: DispositionSkipped},
		{Entry: entryFor("Observation", "o2"), Disposition: DispositionScanned},
		{Entry: entryFor("Patient", "p1"), Disposition: DispositionSkipped},
		{Entry: entryFor("MedicationRequest", "m1"), Disposition: DispositionScanned},
	}

	result := NewAssembler(UnsupportedSilent).Assemble(ModeNarrowed, outcomes)

	if result.Bundle.Type != "transaction" {
		t.Errorf("bundle type = %q, want transaction", result.Bundle.Type)
	}
	if len(result.Bundle.Entry) != 3 {
		t.Fatalf("entry count = %d, want the 3 scanned records", len(result.Bundle.Entry))
	}
	want := Counters{Analyzed: 3, Labeled: 1, Skipped: 2}
	if result.Counters != want {
		t.Errorf("counters = %+v, want %+v", result.Counters, want)
	}
	for _, entry := range result.Bundle.Entry {
		if entry.Request == nil || entry.Request.Method != "PUT" {
			t.Errorf("entry %v missing PUT directive", entry.Resource["id"])
		}
	}
	if got := result.Bundle.Entry[0].Request.URL; got != "Condition/c1" {
		t.Errorf("directive url = %q, want Condition/c1", got)
	}
}

func TestAssembleFullKeepsEveryEntryInPosition(t *testing.T) {
	outcomes := []Outcome{
		{Entry: entryFor("Observation", "o1"), Disposition: DispositionSkipped},
		{Entry: entryFor("Condition", "c1"), Disposition: DispositionScanned},
		{Entry: entryFor("Binary", "b1"), Disposition: DispositionUnsupported},
	}

	result := NewAssembler(UnsupportedSilent).Assemble(ModeFull, outcomes)

	if result.Bundle.Type != "collection" {
		t.Errorf("bundle type = %q, want collection", result.Bundle.Type)
	}
	if len(result.Bundle.Entry) != 3 {
		t.Fatalf("entry count = %d, want all 3 in position", len(result.Bundle.Entry))
	}
	for i, id := range []string{"o1", "c1", "b1"} {
		if got := result.Bundle.Entry[i].Resource["id"]; got != id {
			t.Errorf("entry[%d] = %v, want %s", i, got, id)
		}
	}
	if result.Bundle.Entry[2].Response != nil {
		t.Error("silent policy annotated the unsupported entry")
	}
	if result.Bundle.Total == nil || *result.Bundle.Total != 3 {
		t.Errorf("total = %v, want 3", result.Bundle.Total)
	}
}

func TestAssembleReportPolicyAnnotatesUnsupported(t *testing.T) {
	outcomes := []Outcome{
		{Entry: entryFor("Binary", "b1"), Disposition: DispositionUnsupported},
	}

	result := NewAssembler(UnsupportedReport).Assemble(ModeFull, outcomes)

	resp := result.Bundle.Entry[0].Response
	if resp == nil {
		t.Fatal("report policy left the entry unannotated")
	}
	if resp.Status != "422" {
		t.Errorf("status = %q, want 422", resp.Status)
	}
	if resp.Outcome == nil || resp.Outcome.Severity() != fhir.IssueSeverityWarning {
		t.Errorf("outcome = %+v, want a warning", resp.Outcome)
	}
}

func TestAssembleNarrowedDropsUnsupported(t *testing.T) {
	outcomes := []Outcome{
		{Entry: entryFor("Binary", "b1"), Disposition: DispositionUnsupported},
		{Entry: entryFor("Condition", "c1"), Disposition: DispositionScanned},
	}

	result := NewAssembler(UnsupportedReport).Assemble(ModeNarrowed, outcomes)

	if len(result.Bundle.Entry) != 1 {
		t.Fatalf("entry count = %d, want 1", len(result.Bundle.Entry))
	}
	if got := result.Bundle.Entry[0].Resource["id"]; got != "c1" {
		t.Errorf("kept entry = %v, want c1", got)
	}
}

func TestCollectionLabelsUnionIsOrderIndependent(t *testing.T) {
	psy := fhir.Coding{System: fhir.ActCodeSystem, Code: "PSY"}
	hiv := fhir.Coding{System: fhir.ActCodeSystem, Code: "HIV"}

	forward := []Outcome{
		{Entry: entryFor("Condition", "c1", fhir.RestrictedLabel, psy), Disposition: DispositionScanned},
		{Entry: entryFor("Condition", "c2", fhir.RestrictedLabel, hiv), Disposition: DispositionScanned},
	}
	reversed := []Outcome{forward[1], forward[0]}

	assembler := NewAssembler(UnsupportedSilent)
	a := assembler.Assemble(ModeFull, forward)
	b := assembler.Assemble(ModeFull, reversed)

	if len(a.Labels) != 3 {
		t.Fatalf("labels = %+v, want HIV + PSY + R", a.Labels)
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Errorf("label order depends on record order: %+v vs %+v", a.Labels, b.Labels)
		}
	}
	if a.Bundle.Meta == nil || len(a.Bundle.Meta.Security) != 3 {
		t.Error("collection labels not surfaced on the bundle meta")
	}
}

func TestAssembleNoLabelsLeavesBundleMetaUnset(t *testing.T) {
	outcomes := []Outcome{
		{Entry: entryFor("Observation", "o1"), Disposition: DispositionScanned},
	}

	result := NewAssembler(UnsupportedSilent).Assemble(ModeFull, outcomes)

	if result.Labels != nil {
		t.Errorf("labels = %+v, want none", result.Labels)
	}
	if result.Bundle.Meta != nil {
		t.Errorf("bundle meta = %+v, want unset", result.Bundle.Meta)
	}
}

func TestParseMode(t *testing.T) {
	cases := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"narrowed", ModeNarrowed, false},
		{"full", ModeFull, false},
		{"", ModeFull, false},
		{"compact", "", true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseMode(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

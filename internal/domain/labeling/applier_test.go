package labeling

import (
	"testing"
	"time"

	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

func fixedApplier(at time.Time) *Applier {
	a := NewApplier()
	a.now = func() time.Time { return at }
	return a
}

func securityOf(record map[string]interface{}) []fhir.Coding {
	return fhir.CodingsOf(fhir.MetaOf(record), "security")
}

func TestApplyAddsRestrictedAndTopicLabels(t *testing.T) {
	record := map[string]interface{}{"resourceType": "Condition", "id": "c1"}
	matched := []rules.TopicLabel{
		{System: fhir.ActCodeSystem, Code: "PSY", Display: "psychiatry"},
	}

	fixedApplier(time.Now()).Apply(record, matched)

	security := securityOf(record)
	if len(security) != 2 {
		t.Fatalf("security = %+v, want exactly R + PSY", security)
	}
	if security[0].System != fhir.SecurityLabelSystem || security[0].Code != "R" {
		t.Errorf("first label = %+v, want restricted confidentiality", security[0])
	}
	if security[1].Code != "PSY" {
		t.Errorf("second label = %+v", security[1])
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	record := map[string]interface{}{"resourceType": "Condition", "id": "c1"}
	matched := []rules.TopicLabel{
		{System: fhir.ActCodeSystem, Code: "PSY"},
		{System: fhir.ActCodeSystem, Code: "ETH"},
	}

	applier := fixedApplier(time.Now())
	applier.Apply(record, matched)
	once := append([]fhir.Coding(nil), securityOf(record)...)

	applier.Apply(record, matched)
	twice := securityOf(record)

	if len(once) != len(twice) {
		t.Fatalf("label count changed: %d -> %d", len(once), len(twice))
	}
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("label[%d] changed: %+v -> %+v", i, once[i], twice[i])
		}
	}
}

func TestApplyEmptyMatchStillStampsMarker(t *testing.T) {
	record := map[string]interface{}{"resourceType": "Observation", "id": "o1"}
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	fixedApplier(at).Apply(record, nil)

	if got := securityOf(record); len(got) != 0 {
		t.Fatalf("security = %+v, want none", got)
	}
	marked, ok := fhir.LabeledAt(fhir.MetaOf(record))
	if !ok {
		t.Fatal("marker not stamped")
	}
	if !marked.Equal(at) {
		t.Errorf("marker = %v, want %v", marked, at)
	}
}

func TestApplyReplacesStaleMarker(t *testing.T) {
	old := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	record := markedRecord(old)
	fresh := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	fixedApplier(fresh).Apply(record, nil)

	tags := fhir.CodingsOf(fhir.MetaOf(record), "tag")
	count := 0
	for _, tag := range tags {
		if tag.System == fhir.LabeledTagSystem {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("found %d markers, want exactly one", count)
	}
	marked, _ := fhir.LabeledAt(fhir.MetaOf(record))
	if !marked.Equal(fresh) {
		t.Errorf("marker = %v, want %v", marked, fresh)
	}
}

func TestApplyKeepsStricterConfidentiality(t *testing.T) {
	record := map[string]interface{}{
		"resourceType": "Condition",
		"meta": map[string]interface{}{
			"security": []interface{}{
				map[string]interface{}{"system": fhir.SecurityLabelSystem, "code": fhir.LabelVeryRestricted},
			},
		},
	}

	fixedApplier(time.Now()).Apply(record, []rules.TopicLabel{{System: fhir.ActCodeSystem, Code: "PSY"}})

	security := securityOf(record)
	if len(security) != 2 {
		t.Fatalf("security = %+v, want V + PSY", security)
	}
	if security[0].Code != fhir.LabelVeryRestricted {
		t.Errorf("existing classification replaced: %+v", security[0])
	}
	for _, c := range security {
		if c.Code == fhir.LabelRestricted {
			t.Error("restricted label appended below an existing stricter one")
		}
	}
}

func TestApplyUpgradesWeakerConfidentiality(t *testing.T) {
	record := map[string]interface{}{
		"resourceType": "Condition",
		"meta": map[string]interface{}{
			"security": []interface{}{
				map[string]interface{}{"system": fhir.SecurityLabelSystem, "code": fhir.LabelNormal},
			},
		},
	}

	fixedApplier(time.Now()).Apply(record, []rules.TopicLabel{{System: fhir.ActCodeSystem, Code: "PSY"}})

	if !fhir.HasCoding(fhir.MetaOf(record), "security", fhir.SecurityLabelSystem, fhir.LabelRestricted) {
		t.Error("restricted label not appended over a normal classification")
	}
}

func TestApplyPreservesForeignLabelsAndTags(t *testing.T) {
	record := map[string]interface{}{
		"resourceType": "Condition",
		"meta": map[string]interface{}{
			"security": []interface{}{
				map[string]interface{}{"system": "other-sys", "code": "KEEP"},
			},
			"tag": []interface{}{
				map[string]interface{}{"system": "workflow-sys", "code": "reviewed"},
			},
		},
	}

	fixedApplier(time.Now()).Apply(record, []rules.TopicLabel{{System: fhir.ActCodeSystem, Code: "PSY"}})

	security := securityOf(record)
	if len(security) != 3 {
		t.Fatalf("security = %+v, want KEEP + R + PSY", security)
	}
	tags := fhir.CodingsOf(fhir.MetaOf(record), "tag")
	foreign := false
	for _, tag := range tags {
		if tag.System == "workflow-sys" {
			foreign = true
		}
	}
	if !foreign {
		t.Error("foreign tag removed")
	}
}

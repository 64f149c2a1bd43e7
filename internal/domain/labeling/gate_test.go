package labeling

import (
	"testing"
	"time"

	"github.com/sls/sls/internal/domain/rules"
	"github.com/sls/sls/internal/platform/fhir"
)

func epochTable(t *testing.T, epoch time.Time) *rules.RuleTable {
	t.Helper()
	return testTable(t, &rules.TopicSource{
		ID:      "vs",
		Topics:  []rules.TopicLabel{{System: "sys", Code: "T"}},
		Codes:   []rules.CodeIdentity{{System: "s", Code: "a"}},
		Date:    epoch,
		HasDate: true,
	})
}

func markedRecord(at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Condition",
		"meta": map[string]interface{}{
			"tag": []interface{}{
				map[string]interface{}{
					"system": fhir.LabeledTagSystem,
					"code":   at.UTC().Format(time.RFC3339),
				},
			},
		},
	}
}

func TestGateBoundary(t *testing.T) {
	epoch := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	table := epochTable(t, epoch)

	tests := []struct {
		name     string
		marker   time.Time
		wantScan bool
	}{
		{"marker equals epoch skips", epoch, false},
		{"marker one second earlier scans", epoch.Add(-time.Second), true},
		{"marker after epoch skips", epoch.Add(time.Hour), false},
		{"marker well before epoch scans", epoch.Add(-24 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldScan(markedRecord(tt.marker), table); got != tt.wantScan {
				t.Errorf("ShouldScan = %v, want %v", got, tt.wantScan)
			}
		})
	}
}

func TestGateUnmarkedRecordScans(t *testing.T) {
	table := epochTable(t, time.Now())
	record := map[string]interface{}{"resourceType": "Condition"}
	if !ShouldScan(record, table) {
		t.Fatal("unmarked record skipped")
	}
}

func TestGateNoEpochNeverSkips(t *testing.T) {
	// All sources undated: the table has no epoch and nothing is skipped
	// on marker grounds.
	table := testTable(t, &rules.TopicSource{
		ID:     "vs",
		Topics: []rules.TopicLabel{{System: "sys", Code: "T"}},
		Codes:  []rules.CodeIdentity{{System: "s", Code: "a"}},
	})
	if !ShouldScan(markedRecord(time.Now().Add(time.Hour)), table) {
		t.Fatal("record skipped against a table without an epoch")
	}
}

func TestGateUnparseableMarkerScans(t *testing.T) {
	table := epochTable(t, time.Now().Add(-time.Hour))
	record := map[string]interface{}{
		"resourceType": "Condition",
		"meta": map[string]interface{}{
			"tag": []interface{}{
				map[string]interface{}{"system": fhir.LabeledTagSystem, "code": "not-a-time"},
			},
		},
	}
	if !ShouldScan(record, table) {
		t.Fatal("record with corrupt marker skipped")
	}
}

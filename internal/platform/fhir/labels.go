package fhir

import "time"

// Confidentiality classification labels from the HL7 v3 ConfidentialityClassification
// code system. These form a hierarchy: U < L < M < N < R < V.
const (
	LabelUnrestricted   = "U" // unrestricted
	LabelLow            = "L" // low
	LabelModerate       = "M" // moderate
	LabelNormal         = "N" // normal
	LabelRestricted     = "R" // restricted
	LabelVeryRestricted = "V" // very restricted
)

// SecurityLabelSystem is the FHIR code system URI for confidentiality classifications.
const SecurityLabelSystem = "http://terminology.hl7.org/CodeSystem/v3-Confidentiality"

// ActCodeSystem is the FHIR code system URI for act codes including sensitivity labels.
const ActCodeSystem = "http://terminology.hl7.org/CodeSystem/v3-ActCode"

// LabeledTagSystem identifies the meta.tag coding that records when a resource
// was last scanned by the labeling engine. The coding's code carries the scan
// timestamp in RFC 3339 form.
const LabeledTagSystem = "http://sls.dev/fhir/sec-labeling"

// RestrictedLabel is the confidentiality coding applied to every resource that
// matches at least one sensitivity rule.
var RestrictedLabel = Coding{
	System:  SecurityLabelSystem,
	Code:    LabelRestricted,
	Display: "restricted",
}

// confidentialityOrder maps confidentiality codes to their numeric level for
// hierarchical comparison. Higher values indicate more restricted access.
var confidentialityOrder = map[string]int{
	LabelUnrestricted:   0,
	LabelLow:            1,
	LabelModerate:       2,
	LabelNormal:         3,
	LabelRestricted:     4,
	LabelVeryRestricted: 5,
}

// ConfidentialityLevel returns a numeric level for the given confidentiality code.
// Higher values mean more restricted. Unknown codes return -1.
func ConfidentialityLevel(code string) int {
	if level, ok := confidentialityOrder[code]; ok {
		return level
	}
	return -1
}

// MeetsConfidentiality reports whether the meta's security labels already
// carry a confidentiality classification at or above the given code's level.
func MeetsConfidentiality(meta map[string]interface{}, code string) bool {
	want := ConfidentialityLevel(code)
	if want < 0 {
		return false
	}
	for _, c := range CodingsOf(meta, "security") {
		if c.System == SecurityLabelSystem && ConfidentialityLevel(c.Code) >= want {
			return true
		}
	}
	return false
}

// LabeledTag builds the reprocessing marker coding for the given scan time.
func LabeledTag(at time.Time) Coding {
	return Coding{
		System:  LabeledTagSystem,
		Code:    at.UTC().Format(time.RFC3339),
		Display: "security labeling",
	}
}

// LabeledAt extracts the reprocessing marker timestamp from a resource's meta
// block. It returns false when no marker is present or its timestamp does not
// parse.
func LabeledAt(meta map[string]interface{}) (time.Time, bool) {
	for _, c := range CodingsOf(meta, "tag") {
		if c.System != LabeledTagSystem {
			continue
		}
		t, err := time.Parse(time.RFC3339, c.Code)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

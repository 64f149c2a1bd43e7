package fhir

import "testing"

func TestOutcomeBuilderCollectsIssues(t *testing.T) {
	outcome := NewOutcomeBuilder().
		AddIssue(IssueSeverityInformation, IssueTypeProcessing, "compiled 2 sources").
		AddIssueAt(IssueSeverityWarning, IssueTypeInvalid, "no member codes", "http://example.org/vs/empty").
		Build()

	if len(outcome.Issue) != 2 {
		t.Fatalf("issues = %+v", outcome.Issue)
	}
	if got := outcome.Issue[1].Expression; len(got) != 1 || got[0] != "http://example.org/vs/empty" {
		t.Errorf("expression = %v", got)
	}
	if outcome.Severity() != IssueSeverityWarning {
		t.Errorf("severity = %q, want warning", outcome.Severity())
	}
}

func TestOutcomeBuilderEmptyBuildsValidOutcome(t *testing.T) {
	outcome := NewOutcomeBuilder().Build()
	if len(outcome.Issue) != 1 {
		t.Fatalf("issues = %+v, want single placeholder", outcome.Issue)
	}
	if outcome.Severity() != IssueSeverityInformation {
		t.Errorf("severity = %q", outcome.Severity())
	}
}

func TestSeverityPicksHighest(t *testing.T) {
	outcome := NewOutcomeBuilder().
		AddIssue(IssueSeverityWarning, IssueTypeInvalid, "w").
		AddIssue(IssueSeverityError, IssueTypeProcessing, "e").
		AddIssue(IssueSeverityInformation, IssueTypeProcessing, "i").
		Build()
	if outcome.Severity() != IssueSeverityError {
		t.Errorf("severity = %q, want error", outcome.Severity())
	}
}

func TestNotFoundOutcome(t *testing.T) {
	outcome := NotFoundOutcome("ValueSet", "vs1")
	if outcome.Issue[0].Code != IssueTypeNotFound {
		t.Errorf("code = %q", outcome.Issue[0].Code)
	}
	if outcome.Severity() != IssueSeverityError {
		t.Errorf("severity = %q", outcome.Severity())
	}
}

package fhir

// OperationOutcome severity levels per FHIR R4 spec.
const (
	IssueSeverityFatal       = "fatal"
	IssueSeverityError       = "error"
	IssueSeverityWarning     = "warning"
	IssueSeverityInformation = "information"
)

// OperationOutcome issue type codes per FHIR R4 spec.
const (
	IssueTypeInvalid      = "invalid"
	IssueTypeStructure    = "structure"
	IssueTypeRequired     = "required"
	IssueTypeValue        = "value"
	IssueTypeNotFound     = "not-found"
	IssueTypeProcessing   = "processing"
	IssueTypeNotSupported = "not-supported"
	IssueTypeBusinessRule = "business-rule"
	IssueTypeException    = "exception"
)

// OperationOutcome represents a FHIR OperationOutcome resource.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

func ErrorOutcome(diagnostics string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeProcessing, diagnostics)
}

func NotFoundOutcome(resourceType, id string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityError, IssueTypeNotFound, resourceType+"/"+id+" not found")
}

// SuccessOutcome creates a success OperationOutcome with severity=information.
func SuccessOutcome(message string) *OperationOutcome {
	return NewOperationOutcome(IssueSeverityInformation, IssueTypeProcessing, message)
}

// OutcomeBuilder provides a fluent API for constructing OperationOutcome
// resources with multiple issues, such as per-source compile diagnostics.
type OutcomeBuilder struct {
	outcome *OperationOutcome
}

// NewOutcomeBuilder creates a new OutcomeBuilder.
func NewOutcomeBuilder() *OutcomeBuilder {
	return &OutcomeBuilder{
		outcome: &OperationOutcome{ResourceType: "OperationOutcome"},
	}
}

// AddIssue appends an issue with the given severity, type code, and diagnostics.
func (b *OutcomeBuilder) AddIssue(severity, code, diagnostics string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
	})
	return b
}

// AddIssueAt appends an issue carrying a FHIRPath-style expression locating it.
func (b *OutcomeBuilder) AddIssueAt(severity, code, diagnostics, expression string) *OutcomeBuilder {
	b.outcome.Issue = append(b.outcome.Issue, OperationOutcomeIssue{
		Severity:    severity,
		Code:        code,
		Diagnostics: diagnostics,
		Expression:  []string{expression},
	})
	return b
}

// Build returns the constructed OperationOutcome. An outcome with no issues
// gets a single information issue so the result is always valid FHIR.
func (b *OutcomeBuilder) Build() *OperationOutcome {
	if len(b.outcome.Issue) == 0 {
		b.outcome.Issue = []OperationOutcomeIssue{
			{Severity: IssueSeverityInformation, Code: IssueTypeProcessing, Diagnostics: "ok"},
		}
	}
	return b.outcome
}

// Severity returns the highest severity among the outcome's issues, where
// fatal > error > warning > information.
func (o *OperationOutcome) Severity() string {
	rank := map[string]int{
		IssueSeverityInformation: 0,
		IssueSeverityWarning:     1,
		IssueSeverityError:       2,
		IssueSeverityFatal:       3,
	}
	highest := IssueSeverityInformation
	for _, issue := range o.Issue {
		if rank[issue.Severity] > rank[highest] {
			highest = issue.Severity
		}
	}
	return highest
}

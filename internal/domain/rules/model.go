package rules

import (
	"sort"
	"time"
)

// CodeIdentity is the atomic unit matched against rules: a terminology
// (system, code) pair. Identities compare case-sensitively on both fields.
type CodeIdentity struct {
	System string
	Code   string
}

// LabelKey identifies a TopicLabel for deduplication. Display text is
// informational and never part of identity.
type LabelKey struct {
	System string
	Code   string
}

// TopicLabel is a sensitivity classification tag triggered by a code match.
type TopicLabel struct {
	System  string
	Code    string
	Display string
}

// Key returns the label's deduplication identity.
func (t TopicLabel) Key() LabelKey {
	return LabelKey{System: t.System, Code: t.Code}
}

// TopicSource is one compiled input unit: a set of topic labels that apply to
// every member code of the source.
type TopicSource struct {
	// ID identifies the source for replace-on-recompile semantics. It is
	// the ValueSet url when present, else its resource id.
	ID     string
	URL    string
	Name   string
	Topics []TopicLabel
	Codes  []CodeIdentity

	// Date is the source's effective date signal: the expansion timestamp
	// when present, else the plain resource date. HasDate is false when the
	// source contributes no date signal.
	Date    time.Time
	HasDate bool

	// FromExpansion reports whether the member codes came from a
	// materialized expansion rather than a flat compose list.
	FromExpansion bool

	// Raw retains the source resource as submitted, for persistence.
	Raw map[string]interface{}
}

// RuleTable is an immutable compiled snapshot mapping code identities to the
// deduplicated set of topic labels they trigger. Tables are never mutated
// after Publish; readers bind to one snapshot for a whole request.
type RuleTable struct {
	Version    int
	CompiledAt time.Time

	// Epoch is the minimum effective date across all sources ever compiled
	// into this table lineage. HasEpoch is false until a dated source has
	// been seen.
	Epoch    time.Time
	HasEpoch bool

	entries map[CodeIdentity][]TopicLabel
	sources map[string]*TopicSource
}

// Lookup returns the topic labels triggered by the given code identity, or
// nil when the code matches no rule. The returned slice is shared and must
// not be modified.
func (t *RuleTable) Lookup(id CodeIdentity) []TopicLabel {
	if t == nil {
		return nil
	}
	return t.entries[id]
}

// RuleCount returns the number of (code, label) associations in the table.
func (t *RuleTable) RuleCount() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, labels := range t.entries {
		n += len(labels)
	}
	return n
}

// CodeCount returns the number of distinct code identities in the table.
func (t *RuleTable) CodeCount() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// SourceCount returns the number of sources contributing to the table.
func (t *RuleTable) SourceCount() int {
	if t == nil {
		return 0
	}
	return len(t.sources)
}

// SourceIDs returns the contributing source identifiers in sorted order.
func (t *RuleTable) SourceIDs() []string {
	if t == nil {
		return nil
	}
	ids := make([]string, 0, len(t.sources))
	for id := range t.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourceDiagnostic records why one topic source was rejected during a compile
// request. Rejections are per source and never fail sibling sources.
type SourceDiagnostic struct {
	SourceID string
	Err      error
}

// CompileResult is the outcome of one compile request.
type CompileResult struct {
	Compiled int
	Total    int
	Rejected []SourceDiagnostic
	Table    *RuleTable
}

package labeling

import (
	"sort"

	"github.com/sls/sls/internal/domain/rules"
)

// DefaultMaxDepth bounds the structural walk over a record. Records are
// untrusted input; a pathologically nested tree stops the descent instead of
// exhausting the stack.
const DefaultMaxDepth = 64

// nodeShape classifies one node of a record tree. The set is closed: every
// node is exactly one of these, and dispatch is explicit rather than
// reflective.
type nodeShape int

const (
	shapeScalar nodeShape = iota
	shapeLeafCode
	shapeConceptWrapper
	shapeContainer
	shapeList
)

// Scanner discovers terminology codes inside arbitrarily shaped records and
// matches them against a rule table snapshot.
type Scanner struct {
	maxDepth int
}

// NewScanner creates a scanner with the given depth bound; zero or negative
// means DefaultMaxDepth.
func NewScanner(maxDepth int) *Scanner {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Scanner{maxDepth: maxDepth}
}

// Scan walks the record depth-first and returns the deduplicated set of
// topic labels its codes trigger, sorted by (system, code). An empty result
// is common and valid. The record is never modified.
func (s *Scanner) Scan(resource map[string]interface{}, table *rules.RuleTable) []rules.TopicLabel {
	if table == nil {
		return nil
	}
	matched := map[rules.LabelKey]rules.TopicLabel{}
	for key, child := range resource {
		// meta holds labels this engine applied, not clinical content.
		if key == "meta" {
			continue
		}
		s.visit(child, table, matched, 1)
	}
	if len(matched) == 0 {
		return nil
	}
	labels := make([]rules.TopicLabel, 0, len(matched))
	for _, l := range matched {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].System != labels[j].System {
			return labels[i].System < labels[j].System
		}
		return labels[i].Code < labels[j].Code
	})
	return labels
}

// visit dispatches on the node's shape. Descent stops silently at the depth
// bound; everything above it has already been matched.
func (s *Scanner) visit(node interface{}, table *rules.RuleTable, matched map[rules.LabelKey]rules.TopicLabel, depth int) {
	if depth > s.maxDepth {
		return
	}
	switch classify(node) {
	case shapeLeafCode:
		m := node.(map[string]interface{})
		system, _ := m["system"].(string)
		code, _ := m["code"].(string)
		for _, label := range table.Lookup(rules.CodeIdentity{System: system, Code: code}) {
			matched[label.Key()] = label
		}
	case shapeConceptWrapper:
		m := node.(map[string]interface{})
		codings := m["coding"].([]interface{})
		for _, coding := range codings {
			s.visit(coding, table, matched, depth+1)
		}
		// A concept wrapper can carry sibling containers (e.g. extensions).
		for key, child := range m {
			if key != "coding" && isContainer(child) {
				s.visit(child, table, matched, depth+1)
			}
		}
	case shapeContainer:
		for _, child := range node.(map[string]interface{}) {
			if isContainer(child) {
				s.visit(child, table, matched, depth+1)
			}
		}
	case shapeList:
		for _, child := range node.([]interface{}) {
			if isContainer(child) {
				s.visit(child, table, matched, depth+1)
			}
		}
	}
}

// classify assigns a node its shape. A map with both a system-like and a
// code-like string field is a bare code; a map holding a coding list is a
// concept wrapper.
func classify(node interface{}) nodeShape {
	switch v := node.(type) {
	case map[string]interface{}:
		_, hasSystem := v["system"].(string)
		_, hasCode := v["code"].(string)
		if hasSystem && hasCode {
			return shapeLeafCode
		}
		if _, ok := v["coding"].([]interface{}); ok {
			return shapeConceptWrapper
		}
		return shapeContainer
	case []interface{}:
		return shapeList
	default:
		return shapeScalar
	}
}

func isContainer(node interface{}) bool {
	switch node.(type) {
	case map[string]interface{}, []interface{}:
		return true
	}
	return false
}

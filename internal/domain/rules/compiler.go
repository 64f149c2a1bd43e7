package rules

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Validation errors for topic sources. Each rejects only the source it is
// reported for; sibling sources in the same compile request continue.
var (
	ErrNotValueSet  = errors.New("topic source is not a ValueSet resource")
	ErrNoIdentifier = errors.New("topic source has no url or id")
	ErrNoTopic      = errors.New("topic source resolves no topic identity")
	ErrNoCodes      = errors.New("topic source has no member codes")
	ErrTooDeep      = errors.New("member code tree exceeds maximum nesting depth")
)

// maxFlattenDepth bounds recursive member-code flattening. Topic source input
// is untrusted; a cyclic or absurdly nested tree must not blow the stack.
const maxFlattenDepth = 32

// focusContextCode tags the useContext entries carrying alternate topic
// references on a ValueSet.
const focusContextCode = "focus"

// ParseSource builds a TopicSource from a ValueSet resource map.
//
// Topic identities come from the primary topic field when present, else from
// useContext entries tagged "focus". Member codes come from the (possibly
// nested) expansion.contains tree when present, else from flat
// compose.include concept lists. The effective date prefers the expansion
// timestamp over the plain resource date.
func ParseSource(raw map[string]interface{}) (*TopicSource, error) {
	if rt, _ := raw["resourceType"].(string); rt != "ValueSet" {
		return nil, ErrNotValueSet
	}

	src := &TopicSource{Raw: raw}
	src.URL, _ = raw["url"].(string)
	src.Name, _ = raw["name"].(string)
	src.ID = src.URL
	if src.ID == "" {
		src.ID, _ = raw["id"].(string)
	}
	if src.ID == "" {
		return nil, ErrNoIdentifier
	}

	src.Topics = parseTopics(raw)

	codes, fromExpansion, err := parseMemberCodes(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.ID, err)
	}
	src.Codes = codes
	src.FromExpansion = fromExpansion
	src.Date, _, src.HasDate = parseEffectiveDate(raw)

	// Missing member codes is reported before a missing topic: the caller
	// gets one expansion attempt for an absent member tree, and that
	// expansion may also supply the topic and date fields.
	if len(src.Codes) == 0 {
		return src, fmt.Errorf("%s: %w", src.ID, ErrNoCodes)
	}
	if len(src.Topics) == 0 {
		return nil, fmt.Errorf("%s: %w", src.ID, ErrNoTopic)
	}
	return src, nil
}

// parseTopics resolves the topic identities of a source. The primary topic
// field wins; otherwise every focus-tagged useContext contributes.
func parseTopics(raw map[string]interface{}) []TopicLabel {
	if topics := codingsFromConcepts(raw["topic"]); len(topics) > 0 {
		return dedupeLabels(topics)
	}

	contexts, _ := raw["useContext"].([]interface{})
	var labels []TopicLabel
	for _, item := range contexts {
		uc, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		tag, _ := uc["code"].(map[string]interface{})
		if code, _ := tag["code"].(string); code != focusContextCode {
			continue
		}
		labels = append(labels, codingsFromConcept(uc["valueCodeableConcept"])...)
	}
	return dedupeLabels(labels)
}

// codingsFromConcepts extracts topic labels from a list of CodeableConcepts.
func codingsFromConcepts(v interface{}) []TopicLabel {
	list, _ := v.([]interface{})
	var labels []TopicLabel
	for _, item := range list {
		labels = append(labels, codingsFromConcept(item)...)
	}
	return labels
}

// codingsFromConcept extracts topic labels from one CodeableConcept map.
func codingsFromConcept(v interface{}) []TopicLabel {
	concept, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	codings, _ := concept["coding"].([]interface{})
	var labels []TopicLabel
	for _, item := range codings {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var l TopicLabel
		l.System, _ = m["system"].(string)
		l.Code, _ = m["code"].(string)
		l.Display, _ = m["display"].(string)
		if l.Code != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

func dedupeLabels(labels []TopicLabel) []TopicLabel {
	seen := make(map[LabelKey]bool, len(labels))
	out := labels[:0]
	for _, l := range labels {
		if seen[l.Key()] {
			continue
		}
		seen[l.Key()] = true
		out = append(out, l)
	}
	return out
}

// parseMemberCodes flattens a source's member codes. The expansion.contains
// tree is preferred; entries there may nest arbitrarily. The second return
// reports whether the codes came from an expansion.
func parseMemberCodes(raw map[string]interface{}) ([]CodeIdentity, bool, error) {
	if expansion, ok := raw["expansion"].(map[string]interface{}); ok {
		if contains, ok := expansion["contains"].([]interface{}); ok {
			codes, err := flattenContains(contains, 0, nil, map[CodeIdentity]bool{})
			if err != nil {
				return nil, true, err
			}
			if len(codes) > 0 {
				return codes, true, nil
			}
		}
	}

	compose, _ := raw["compose"].(map[string]interface{})
	includes, _ := compose["include"].([]interface{})
	seen := map[CodeIdentity]bool{}
	var codes []CodeIdentity
	for _, item := range includes {
		inc, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		system, _ := inc["system"].(string)
		concepts, _ := inc["concept"].([]interface{})
		for _, c := range concepts {
			m, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			code, _ := m["code"].(string)
			if code == "" {
				continue
			}
			id := CodeIdentity{System: system, Code: code}
			if !seen[id] {
				seen[id] = true
				codes = append(codes, id)
			}
		}
	}
	return codes, false, nil
}

// flattenContains walks a possibly nested expansion.contains tree, collecting
// every (system, code) pair exactly once.
func flattenContains(list []interface{}, depth int, codes []CodeIdentity, seen map[CodeIdentity]bool) ([]CodeIdentity, error) {
	if depth > maxFlattenDepth {
		return nil, ErrTooDeep
	}
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		system, _ := m["system"].(string)
		code, _ := m["code"].(string)
		if code != "" {
			id := CodeIdentity{System: system, Code: code}
			if !seen[id] {
				seen[id] = true
				codes = append(codes, id)
			}
		}
		if nested, ok := m["contains"].([]interface{}); ok {
			var err error
			codes, err = flattenContains(nested, depth+1, codes, seen)
			if err != nil {
				return nil, err
			}
		}
	}
	return codes, nil
}

// parseEffectiveDate returns the source's date signal: the expansion
// timestamp when present, else the plain resource date.
func parseEffectiveDate(raw map[string]interface{}) (t time.Time, fromExpansion, ok bool) {
	if expansion, isMap := raw["expansion"].(map[string]interface{}); isMap {
		if ts, isStr := expansion["timestamp"].(string); isStr {
			if parsed, err := parseFHIRTime(ts); err == nil {
				return parsed, true, true
			}
		}
	}
	if date, isStr := raw["date"].(string); isStr {
		if parsed, err := parseFHIRTime(date); err == nil {
			return parsed, false, true
		}
	}
	return time.Time{}, false, false
}

// parseFHIRTime accepts the dateTime precisions a ValueSet date can carry.
func parseFHIRTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// compile builds the next immutable table from the previous snapshot and a
// set of newly accepted sources. A source whose ID already contributed
// replaces its prior contribution. The epoch is the minimum date across all
// sources ever compiled, so it only ever decreases or stays equal.
func compile(prev *RuleTable, accepted []*TopicSource) *RuleTable {
	next := &RuleTable{
		Version:    1,
		CompiledAt: time.Now().UTC(),
		sources:    map[string]*TopicSource{},
		entries:    map[CodeIdentity][]TopicLabel{},
	}
	if prev != nil {
		next.Version = prev.Version + 1
		next.Epoch = prev.Epoch
		next.HasEpoch = prev.HasEpoch
		for id, src := range prev.sources {
			next.sources[id] = src
		}
	}
	for _, src := range accepted {
		next.sources[src.ID] = src
		if src.HasDate && (!next.HasEpoch || src.Date.Before(next.Epoch)) {
			next.Epoch = src.Date
			next.HasEpoch = true
		}
	}

	type labelSet map[LabelKey]TopicLabel
	assoc := map[CodeIdentity]labelSet{}
	for _, src := range next.sources {
		for _, code := range src.Codes {
			set := assoc[code]
			if set == nil {
				set = labelSet{}
				assoc[code] = set
			}
			for _, topic := range src.Topics {
				set[topic.Key()] = topic
			}
		}
	}

	for code, set := range assoc {
		labels := make([]TopicLabel, 0, len(set))
		for _, l := range set {
			labels = append(labels, l)
		}
		sort.Slice(labels, func(i, j int) bool {
			if labels[i].System != labels[j].System {
				return labels[i].System < labels[j].System
			}
			return labels[i].Code < labels[j].Code
		})
		next.entries[code] = labels
	}
	return next
}

// retire builds the next table without the named source's contribution. The
// epoch is deliberately left untouched: it is the minimum across current and
// past sources.
func retire(prev *RuleTable, sourceID string) (*RuleTable, bool) {
	if prev == nil {
		return nil, false
	}
	if _, ok := prev.sources[sourceID]; !ok {
		return prev, false
	}
	remaining := make([]*TopicSource, 0, len(prev.sources)-1)
	for id, src := range prev.sources {
		if id != sourceID {
			remaining = append(remaining, src)
		}
	}
	empty := &RuleTable{
		Version:    prev.Version,
		CompiledAt: prev.CompiledAt,
		Epoch:      prev.Epoch,
		HasEpoch:   prev.HasEpoch,
		sources:    map[string]*TopicSource{},
		entries:    map[CodeIdentity][]TopicLabel{},
	}
	return compile(empty, remaining), true
}

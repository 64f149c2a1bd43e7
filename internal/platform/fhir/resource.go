package fhir

import "time"

type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
	Security    []Coding  `json:"security,omitempty"`
	Tag         []Coding  `json:"tag,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// ResourceTypeOf returns the resourceType of a generic resource map, or "".
func ResourceTypeOf(resource map[string]interface{}) string {
	rt, _ := resource["resourceType"].(string)
	return rt
}

// ResourceIDOf returns the id of a generic resource map, or "".
func ResourceIDOf(resource map[string]interface{}) string {
	id, _ := resource["id"].(string)
	return id
}

// MetaOf returns the meta block of a generic resource map, or nil.
func MetaOf(resource map[string]interface{}) map[string]interface{} {
	meta, _ := resource["meta"].(map[string]interface{})
	return meta
}

// EnsureMeta returns the meta block of a generic resource map, creating it
// when absent.
func EnsureMeta(resource map[string]interface{}) map[string]interface{} {
	if meta, ok := resource["meta"].(map[string]interface{}); ok {
		return meta
	}
	meta := map[string]interface{}{}
	resource["meta"] = meta
	return meta
}

// CodingsOf parses a list of coding objects from the named field of a generic
// meta map (e.g. "security" or "tag"). Entries without a code are dropped.
func CodingsOf(meta map[string]interface{}, field string) []Coding {
	if meta == nil {
		return nil
	}
	raw, ok := meta[field].([]interface{})
	if !ok {
		return nil
	}
	codings := make([]Coding, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		var c Coding
		if v, ok := m["system"].(string); ok {
			c.System = v
		}
		if v, ok := m["code"].(string); ok {
			c.Code = v
		}
		if v, ok := m["display"].(string); ok {
			c.Display = v
		}
		if c.Code != "" {
			codings = append(codings, c)
		}
	}
	return codings
}

// HasCoding reports whether the named coding list already contains an entry
// with the given system and code. Display text is ignored.
func HasCoding(meta map[string]interface{}, field, system, code string) bool {
	for _, c := range CodingsOf(meta, field) {
		if c.System == system && c.Code == code {
			return true
		}
	}
	return false
}

// AppendCoding appends a coding to the named list of a meta map, creating the
// list when absent.
func AppendCoding(meta map[string]interface{}, field string, coding Coding) {
	list, _ := meta[field].([]interface{})
	meta[field] = append(list, coding.toMap())
}

// RemoveCodings removes every coding with the given system from the named
// list. An emptied list is deleted from the meta map.
func RemoveCodings(meta map[string]interface{}, field, system string) {
	raw, ok := meta[field].([]interface{})
	if !ok {
		return
	}
	kept := make([]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			if s, _ := m["system"].(string); s == system {
				continue
			}
		}
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		delete(meta, field)
		return
	}
	meta[field] = kept
}

func (c Coding) toMap() map[string]interface{} {
	m := map[string]interface{}{}
	if c.System != "" {
		m["system"] = c.System
	}
	if c.Code != "" {
		m["code"] = c.Code
	}
	if c.Display != "" {
		m["display"] = c.Display
	}
	return m
}

package fhir

import (
	"fmt"
	"time"
)

// Bundle represents a FHIR Bundle resource. Entry resources are kept as
// generic maps because the labeling engine mutates them in place.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Meta         *Meta         `json:"meta,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string                 `json:"fullUrl,omitempty"`
	Resource map[string]interface{} `json:"resource,omitempty"`
	Request  *BundleRequest         `json:"request,omitempty"`
	Response *BundleResponse        `json:"response,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type BundleResponse struct {
	Status  string      `json:"status"`
	Outcome *OperationOutcome `json:"outcome,omitempty"`
}

// NewCollectionBundle creates a collection Bundle from the given entries.
func NewCollectionBundle(entries []BundleEntry) *Bundle {
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "collection",
		Timestamp:    &now,
		Entry:        entries,
	}
}

// NewTransactionBundle creates a transaction Bundle from the given entries.
// Callers are expected to have populated each entry's update directive.
func NewTransactionBundle(entries []BundleEntry) *Bundle {
	now := time.Now().UTC()
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "transaction",
		Timestamp:    &now,
		Entry:        entries,
	}
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

package fhir

import (
	"time"

	"github.com/goccy/go-json"
)

// Bundle represents a FHIR searchset Bundle.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// NewSearchBundle creates a searchset Bundle from one page of resources. Each
// entry's fullUrl is the resource's relative reference.
func NewSearchBundle(resources []interface{}, total int, baseURL string) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		var head Resource
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, err
		}
		entries[i] = BundleEntry{
			FullURL:  fullURL(head),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         []BundleLink{{Relation: "self", URL: baseURL}},
		Entry:        entries,
	}, nil
}

func fullURL(r Resource) string {
	if r.ResourceType == "" || r.ID == "" {
		return ""
	}
	return FormatReference(r.ResourceType, r.ID)
}

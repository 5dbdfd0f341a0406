package fhir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ehr/omopfhir/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
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

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	BaseURL  string
	QueryStr string
	Page     pagination.Params
	Total    int
}

// NewSearchBundle creates a searchset Bundle from rendered resources, with
// self/next/previous links derived from the page.
func NewSearchBundle(resources []map[string]interface{}, params SearchBundleParams) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, len(resources))
	for i, r := range resources {
		raw, _ := json.Marshal(r)
		entries[i] = BundleEntry{
			FullURL:  fullURL(r),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		}
	}

	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &params.Total,
		Timestamp:    &now,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}
}

func fullURL(r map[string]interface{}) string {
	rt, _ := r["resourceType"].(string)
	id, _ := r["id"].(string)
	if rt != "" && id != "" {
		return FormatReference(rt, id)
	}
	return ""
}

// buildPaginationLinks creates self, next, and previous links for searchset bundles.
func buildPaginationLinks(params SearchBundleParams) []BundleLink {
	page := params.Page
	link := func(rel string, offset int) BundleLink {
		return BundleLink{
			Relation: rel,
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", params.BaseURL, conditionalAmpersand(params.QueryStr), page.Limit, offset),
		}
	}

	links := []BundleLink{link("self", page.Offset)}
	if page.HasNext(params.Total) {
		links = append(links, link("next", page.NextOffset()))
	}
	if page.HasPrevious() {
		links = append(links, link("previous", page.PreviousOffset()))
	}
	return links
}

// conditionalAmpersand returns the query string with a trailing & if non-empty.
func conditionalAmpersand(qs string) string {
	if qs == "" {
		return ""
	}
	return qs + "&"
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return fmt.Sprintf("%s/%s", resourceType, id)
}

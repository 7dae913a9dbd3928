package types

// TabKind is the content kind of a workspace tab.
type TabKind string

const (
	KindMarkdown TabKind = "markdown"
	KindCSV      TabKind = "csv"
)

// Tab is a single named document owned by exactly one project.
// ID must be a canonical UUID; tabs materialized from non-canonical sources
// (template imports, legacy storage) are re-identified on load before any
// by-id lookup is allowed to see them.
type Tab struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Kind    TabKind `json:"kind"`
	Content string  `json:"content"`
}

// TabMeta is the lightweight tab descriptor included in the context snapshot
// handed to the realtime transport at connect time.
type TabMeta struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Kind TabKind `json:"kind"`
}

// Meta strips content from a tab.
func (t Tab) Meta() TabMeta {
	return TabMeta{ID: t.ID, Name: t.Name, Kind: t.Kind}
}

// Project is an ordered tab collection governed by one persona suite.
type Project struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	SuiteID string `json:"suite_id"`
	Tabs    []Tab  `json:"tabs"`
}

package dataset

import (
	"fmt"
	"time"

	"github.com/openvoices/insights-backend/internal/taxonomy"
)

// SourceKind names the supported campaign source kinds.
type SourceKind string

const (
	SourceLocalFile SourceKind = "file"
	SourceURL       SourceKind = "url"
	SourceObjectKey SourceKind = "object"
)

// Source describes where a campaign's CSV lives.
type Source struct {
	Kind  SourceKind
	Value string
}

func (s Source) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.Value)
}

// Row is one respondent's answer to one question. Rows are immutable once
// loaded; text destined for search is lemmatized and tokenized here so the
// query path never re-derives it.
type Row struct {
	RespondentID string
	QuestionKey  string
	RawText      string
	Lemmatized   string
	Tokens       []string

	// Codes holds the resolved canonical codes of the response (a response
	// may carry several, slash-separated in the source). ParentCodes are the
	// owning parent categories, deduplicated and sorted.
	Codes       []string
	ParentCodes []string

	CountryAlpha2 string
	Region        string
	Province      string
	Gender        string
	Profession    string
	Setting       string

	// Age keeps the source value (a number, a bucket label or
	// "Prefer not to say"). AgeNum is -1 when the value is not numeric.
	Age       string
	AgeNum    int
	AgeBucket string

	ResponseYear  int
	IngestionTime time.Time
	DataSource    string
}

// Dataset is one campaign's validated, immutable row set plus the distinct
// value inventories the dashboards offer as filter options. A reload
// produces a fresh Dataset; nothing here is mutated after Load returns.
type Dataset struct {
	CampaignCode string
	Taxonomy     *taxonomy.Taxonomy
	QuestionKeys []string
	Rows         []Row
	LoadedAt     time.Time
	Source       Source

	// Load accounting: rows dropped for missing required fields and rows
	// dropped for canonical codes outside the taxonomy.
	DroppedRows    int
	UnresolvedRows int

	Countries        []string
	RegionsByCountry map[string][]string
	Genders          []string
	Professions      []string
	Settings         []string
	Ages             []string
	AgeBuckets       []string
	ResponseYears    []int
}

// RowsForQuestion returns the rows tagged with questionKey, preserving load
// order.
func (d *Dataset) RowsForQuestion(questionKey string) []Row {
	out := make([]Row, 0, len(d.Rows))
	for _, row := range d.Rows {
		if row.QuestionKey == questionKey {
			out = append(out, row)
		}
	}
	return out
}

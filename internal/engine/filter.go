package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openvoices/insights-backend/internal/dataset"
)

// FilterErrorCode classifies query-validation failures.
type FilterErrorCode string

const (
	FilterErrorUnknownDimension FilterErrorCode = "unknown_dimension"
	FilterErrorInvalidRange     FilterErrorCode = "invalid_range"
)

// FilterError rejects a query at validation time. It is surfaced to the
// caller, never silently ignored.
type FilterError struct {
	Code      FilterErrorCode
	Dimension string
	Detail    string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter: %s (dimension=%q) %s", e.Code, e.Dimension, e.Detail)
}

// Range is an inclusive numeric bound.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Filter is one query's predicate set. Dimensions combine conjunctively;
// values within one dimension combine disjunctively. An empty slice means
// no restriction on that dimension.
type Filter struct {
	Countries   []string `json:"countries,omitempty"`
	Regions     []string `json:"regions,omitempty"`
	Provinces   []string `json:"provinces,omitempty"`
	Genders     []string `json:"genders,omitempty"`
	Professions []string `json:"professions,omitempty"`
	Settings    []string `json:"settings,omitempty"`
	Ages        []string `json:"ages,omitempty"`
	AgeBuckets  []string `json:"age_buckets,omitempty"`
	AgeRange    *Range   `json:"age_range,omitempty"`
	YearRange   *Range   `json:"year_range,omitempty"`
	Categories  []string `json:"categories,omitempty"`

	// Keyword matching is a case-insensitive substring test against the
	// lemmatized response text.
	Keyword        string `json:"keyword,omitempty"`
	KeywordExclude string `json:"keyword_exclude,omitempty"`
}

// ParseFilter decodes a predicate set, rejecting unknown dimensions.
func ParseFilter(data []byte) (*Filter, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Filter{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f Filter
	if err := dec.Decode(&f); err != nil {
		if strings.Contains(err.Error(), "unknown field") {
			return nil, &FilterError{
				Code:      FilterErrorUnknownDimension,
				Dimension: unknownFieldName(err),
			}
		}
		return nil, fmt.Errorf("filter: decode predicate set: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func unknownFieldName(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "unknown field "); i >= 0 {
		return strings.Trim(msg[i+len("unknown field "):], `"`)
	}
	return ""
}

// Validate checks range predicates. Inclusive bounds; Min must not exceed
// Max and bounds must not be negative.
func (f *Filter) Validate() error {
	for dim, r := range map[string]*Range{"age_range": f.AgeRange, "year_range": f.YearRange} {
		if r == nil {
			continue
		}
		if r.Min < 0 || r.Max < 0 || r.Min > r.Max {
			return &FilterError{
				Code:      FilterErrorInvalidRange,
				Dimension: dim,
				Detail:    fmt.Sprintf("[%d,%d]", r.Min, r.Max),
			}
		}
	}
	return nil
}

// IsEmpty reports whether the filter restricts anything.
func (f *Filter) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Countries) == 0 && len(f.Regions) == 0 && len(f.Provinces) == 0 &&
		len(f.Genders) == 0 && len(f.Professions) == 0 && len(f.Settings) == 0 &&
		len(f.Ages) == 0 && len(f.AgeBuckets) == 0 &&
		f.AgeRange == nil && f.YearRange == nil &&
		len(f.Categories) == 0 && f.Keyword == "" && f.KeywordExclude == ""
}

// compiled holds the lowercase lookup sets built once per query.
type compiled struct {
	countries   map[string]bool
	regions     map[string]bool
	provinces   map[string]bool
	genders     map[string]bool
	professions map[string]bool
	settings    map[string]bool
	ages        map[string]bool
	ageBuckets  map[string]bool
	categories  map[string]bool
	keyword     string
	keywordExcl string
	ageRange    *Range
	yearRange   *Range
}

func (f *Filter) compile() *compiled {
	return &compiled{
		countries:   toLowerSet(f.Countries),
		regions:     toLowerSet(f.Regions),
		provinces:   toLowerSet(f.Provinces),
		genders:     toLowerSet(f.Genders),
		professions: toLowerSet(f.Professions),
		settings:    toLowerSet(f.Settings),
		ages:        toLowerSet(f.Ages),
		ageBuckets:  toLowerSet(f.AgeBuckets),
		categories:  toLowerSet(f.Categories),
		keyword:     strings.ToLower(f.Keyword),
		keywordExcl: strings.ToLower(f.KeywordExclude),
		ageRange:    f.AgeRange,
		yearRange:   f.YearRange,
	}
}

func toLowerSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}

// FilterRows selects the rows of one question that satisfy every predicate,
// in a single linear pass. Rows lacking a field a predicate needs never
// match that predicate.
func FilterRows(ds *dataset.Dataset, questionKey string, f *Filter) ([]dataset.Row, error) {
	if f == nil {
		f = &Filter{}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := f.compile()

	subset := make([]dataset.Row, 0, len(ds.Rows))
	for _, row := range ds.Rows {
		if row.QuestionKey != questionKey {
			continue
		}
		if matches(&row, c) {
			subset = append(subset, row)
		}
	}
	return subset, nil
}

// FilterSubset re-applies a predicate set to an already-filtered subset.
func FilterSubset(subset []dataset.Row, f *Filter) ([]dataset.Row, error) {
	if f == nil {
		f = &Filter{}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	c := f.compile()
	out := make([]dataset.Row, 0, len(subset))
	for _, row := range subset {
		if matches(&row, c) {
			out = append(out, row)
		}
	}
	return out, nil
}

func matches(row *dataset.Row, c *compiled) bool {
	if c.countries != nil && !c.countries[strings.ToLower(row.CountryAlpha2)] {
		return false
	}

	// Regions and provinces OR-combine when both are restricted.
	if c.regions != nil && c.provinces != nil {
		if !c.regions[strings.ToLower(row.Region)] && !c.provinces[strings.ToLower(row.Province)] {
			return false
		}
	} else if c.regions != nil {
		if row.Region == "" || !c.regions[strings.ToLower(row.Region)] {
			return false
		}
	} else if c.provinces != nil {
		if row.Province == "" || !c.provinces[strings.ToLower(row.Province)] {
			return false
		}
	}

	if c.genders != nil && (row.Gender == "" || !c.genders[strings.ToLower(row.Gender)]) {
		return false
	}
	if c.professions != nil && (row.Profession == "" || !c.professions[strings.ToLower(row.Profession)]) {
		return false
	}
	if c.settings != nil && (row.Setting == "" || !c.settings[strings.ToLower(row.Setting)]) {
		return false
	}

	// Exact ages and age buckets OR-combine, like regions/provinces.
	if c.ages != nil && c.ageBuckets != nil {
		if !c.ages[strings.ToLower(row.Age)] && !c.ageBuckets[strings.ToLower(row.AgeBucket)] {
			return false
		}
	} else if c.ages != nil {
		if row.Age == "" || !c.ages[strings.ToLower(row.Age)] {
			return false
		}
	} else if c.ageBuckets != nil {
		if row.AgeBucket == "" || !c.ageBuckets[strings.ToLower(row.AgeBucket)] {
			return false
		}
	}

	if c.ageRange != nil {
		if row.AgeNum < 0 || row.AgeNum < c.ageRange.Min || row.AgeNum > c.ageRange.Max {
			return false
		}
	}
	if c.yearRange != nil {
		if row.ResponseYear == 0 || row.ResponseYear < c.yearRange.Min || row.ResponseYear > c.yearRange.Max {
			return false
		}
	}

	if c.categories != nil && !rowHasCategory(row, c.categories) {
		return false
	}

	if c.keyword != "" && !strings.Contains(strings.ToLower(row.Lemmatized), c.keyword) {
		return false
	}
	if c.keywordExcl != "" && strings.Contains(strings.ToLower(row.Lemmatized), c.keywordExcl) {
		return false
	}
	return true
}

// rowHasCategory accepts sub-category codes and parent codes alike.
func rowHasCategory(row *dataset.Row, categories map[string]bool) bool {
	for _, code := range row.Codes {
		if categories[strings.ToLower(code)] {
			return true
		}
	}
	for _, parent := range row.ParentCodes {
		if categories[strings.ToLower(parent)] {
			return true
		}
	}
	return false
}

package engine

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/openvoices/insights-backend/internal/dataset"
)

// Kind names the supported aggregation kinds.
type Kind string

const (
	KindCategoryBreakdown  Kind = "category_breakdown"
	KindDimensionBreakdown Kind = "dimension_breakdown"
	KindKeywordExtraction  Kind = "keyword_extraction"
	KindHistogram          Kind = "histogram"
	KindRespondentsSummary Kind = "respondents_summary"
)

// Spec describes one aggregation request.
type Spec struct {
	Kind Kind `json:"kind"`
	// Dimension applies to dimension breakdowns.
	Dimension string `json:"dimension,omitempty"`
	// TopN and NGramSize apply to keyword extraction. NGramSize is 1, 2 or
	// 3; TopN defaults to 20.
	TopN      int `json:"top_n,omitempty"`
	NGramSize int `json:"ngram_size,omitempty"`
}

// Bucket is one labeled count. ByCampaign is populated by merged views.
type Bucket struct {
	Code        string         `json:"code,omitempty"`
	Label       string         `json:"label"`
	Count       int            `json:"count"`
	NoResponses bool           `json:"no_responses,omitempty"`
	ByCampaign  map[string]int `json:"by_campaign,omitempty"`
}

// ParentGroup is one parent category's slice of a category breakdown.
type ParentGroup struct {
	Code    string   `json:"code"`
	Label   string   `json:"label"`
	Count   int      `json:"count"`
	Buckets []Bucket `json:"buckets"`
}

// Result is the outcome of one aggregation. Exactly one of Categories,
// Buckets or Histogram is populated, depending on the kind.
type Result struct {
	Kind       Kind                `json:"kind"`
	Total      int                 `json:"total"`
	Categories []ParentGroup       `json:"categories,omitempty"`
	Buckets    []Bucket            `json:"buckets,omitempty"`
	Histogram  map[string][]Bucket `json:"histogram,omitempty"`

	// Respondents and AverageAge are set by the respondents summary.
	Respondents int     `json:"respondents,omitempty"`
	AverageAge  float64 `json:"average_age,omitempty"`
}

// Localizer renders display strings in the requested language. Counts are
// never translated.
type Localizer interface {
	Translate(ctx context.Context, text, targetLanguage string) string
}

// Options carries cross-cutting aggregation inputs.
type Options struct {
	Localizer       Localizer
	Language        string
	DefaultLanguage string
	Stopwords       map[string]bool
}

func (o Options) localize(ctx context.Context, text string) string {
	if o.Localizer == nil || o.Language == "" || o.Language == o.DefaultLanguage {
		return text
	}
	return o.Localizer.Translate(ctx, text, o.Language)
}

// histogramDimensions are the dimensions a full histogram reports.
var histogramDimensions = []string{"country", "age", "age_bucket", "gender", "profession", "setting"}

// Aggregate computes the requested statistic over a filtered subset. For
// identical subset and spec the result is identical across calls; every
// iteration below runs in a deterministic order.
func Aggregate(ctx context.Context, ds *dataset.Dataset, subset []dataset.Row, spec Spec, opts Options) (*Result, error) {
	switch spec.Kind {
	case KindCategoryBreakdown:
		return categoryBreakdown(ctx, ds, subset, opts), nil
	case KindDimensionBreakdown:
		buckets, err := dimensionBreakdown(ctx, subset, spec.Dimension, opts)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: spec.Kind, Total: len(subset), Buckets: buckets}, nil
	case KindKeywordExtraction:
		return keywordExtraction(ctx, subset, spec, opts), nil
	case KindHistogram:
		histogram := make(map[string][]Bucket, len(histogramDimensions))
		for _, dim := range histogramDimensions {
			buckets, err := dimensionBreakdown(ctx, subset, dim, opts)
			if err != nil {
				return nil, err
			}
			histogram[dim] = buckets
		}
		return &Result{Kind: spec.Kind, Total: len(subset), Histogram: histogram}, nil
	case KindRespondentsSummary:
		return respondentsSummary(subset), nil
	default:
		return nil, &FilterError{Code: FilterErrorUnknownDimension, Dimension: string(spec.Kind), Detail: "unknown aggregation kind"}
	}
}

// categoryBreakdown counts responses per sub-category, grouped under
// parents in taxonomy declaration order. Zero-count categories stay in the
// result flagged as having no responses.
func categoryBreakdown(ctx context.Context, ds *dataset.Dataset, subset []dataset.Row, opts Options) *Result {
	counts := make(map[string]int)
	for _, row := range subset {
		for _, code := range row.Codes {
			counts[code]++
		}
	}

	result := &Result{Kind: KindCategoryBreakdown, Total: len(subset)}
	for _, parent := range ds.Taxonomy.Parents() {
		group := ParentGroup{
			Code:  parent.Code,
			Label: opts.localize(ctx, parent.Description),
		}
		for _, sub := range parent.SubCategories {
			count := counts[sub.Code]
			group.Count += count
			group.Buckets = append(group.Buckets, Bucket{
				Code:        sub.Code,
				Label:       opts.localize(ctx, sub.Description),
				Count:       count,
				NoResponses: count == 0,
			})
		}
		result.Categories = append(result.Categories, group)
	}
	return result
}

// dimensionValue extracts the grouping value of a row for a dimension. The
// second return is false when the row lacks the field.
func dimensionValue(row *dataset.Row, dimension string) (string, bool) {
	var v string
	switch dimension {
	case "country":
		v = row.CountryAlpha2
	case "region":
		v = row.Region
	case "province":
		v = row.Province
	case "gender":
		v = row.Gender
	case "profession":
		v = row.Profession
	case "setting":
		v = row.Setting
	case "age":
		v = row.Age
	case "age_bucket":
		v = row.AgeBucket
	case "data_source":
		v = row.DataSource
	case "year":
		if row.ResponseYear == 0 {
			return "", false
		}
		return strconv.Itoa(row.ResponseYear), true
	default:
		return "", false
	}
	return v, v != ""
}

var knownDimensions = map[string]bool{
	"country": true, "region": true, "province": true, "gender": true,
	"profession": true, "setting": true, "age": true, "age_bucket": true,
	"year": true, "data_source": true,
}

// dimensionBreakdown counts rows per distinct dimension value, sorted by
// descending count with a stable tie-break on the dimension's natural
// order (numeric for ages and years, first-seen otherwise).
func dimensionBreakdown(ctx context.Context, subset []dataset.Row, dimension string, opts Options) ([]Bucket, error) {
	if !knownDimensions[dimension] {
		return nil, &FilterError{Code: FilterErrorUnknownDimension, Dimension: dimension}
	}

	counts := make(map[string]int)
	order := []string{}
	for _, row := range subset {
		value, ok := dimensionValue(&row, dimension)
		if !ok {
			continue
		}
		if _, seen := counts[value]; !seen {
			order = append(order, value)
		}
		counts[value]++
	}

	switch dimension {
	case "age", "age_bucket":
		dataset.SortAgeLabels(order)
	case "year":
		sort.Slice(order, func(i, j int) bool {
			a, _ := strconv.Atoi(order[i])
			b, _ := strconv.Atoi(order[j])
			return a < b
		})
	case "country":
		sort.Strings(order)
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	buckets := make([]Bucket, 0, len(order))
	for _, value := range order {
		buckets = append(buckets, Bucket{
			Label: opts.localize(ctx, value),
			Count: counts[value],
		})
	}
	return buckets, nil
}

// keywordExtraction returns the most frequent lemmas or phrases across the
// subset, stopwords excluded, ties broken by first-seen order.
func keywordExtraction(ctx context.Context, subset []dataset.Row, spec Spec, opts Options) *Result {
	size := spec.NGramSize
	if size < 1 || size > 3 {
		size = 1
	}
	topN := spec.TopN
	if topN <= 0 {
		topN = 20
	}

	stopwords := opts.Stopwords
	if stopwords == nil {
		stopwords = defaultStopwords
	}
	buckets := ngramCounts(subset, size, stopwords)
	if len(buckets) > topN {
		buckets = buckets[:topN]
	}
	// Keyword labels are respondent language, not UI chrome; they pass
	// through localization like any other display string.
	if opts.Localizer != nil && opts.Language != "" && opts.Language != opts.DefaultLanguage {
		for i := range buckets {
			buckets[i].Label = opts.Localizer.Translate(ctx, buckets[i].Label, opts.Language)
		}
	}
	return &Result{Kind: KindKeywordExtraction, Total: len(subset), Buckets: buckets}
}

// respondentsSummary counts distinct respondents and averages their ages.
// Rows without a numeric age count toward the total but not the average.
func respondentsSummary(subset []dataset.Row) *Result {
	seen := make(map[string]bool, len(subset))
	ageSum, aged := 0, 0
	for _, row := range subset {
		if seen[row.RespondentID] {
			continue
		}
		seen[row.RespondentID] = true
		if row.AgeNum >= 0 {
			ageSum += row.AgeNum
			aged++
		}
	}

	result := &Result{
		Kind:        KindRespondentsSummary,
		Total:       len(subset),
		Respondents: len(seen),
	}
	if aged > 0 {
		result.AverageAge = float64(ageSum) / float64(aged)
	}
	return result
}

// ngramCounts counts n-grams over pre-tokenized rows. A phrase is skipped
// when any of its tokens is a stopword, matching the original word-cloud
// behavior.
func ngramCounts(subset []dataset.Row, size int, stopwords map[string]bool) []Bucket {
	counts := make(map[string]int)
	order := []string{}

	for _, row := range subset {
		tokens := row.Tokens
		for i := 0; i+size <= len(tokens); i++ {
			skip := false
			for j := i; j < i+size; j++ {
				if tokens[j] == "" || stopwords[strings.ToLower(tokens[j])] {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			phrase := strings.Join(tokens[i:i+size], " ")
			if _, seen := counts[phrase]; !seen {
				order = append(order, phrase)
			}
			counts[phrase]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	buckets := make([]Bucket, 0, len(order))
	for _, phrase := range order {
		buckets = append(buckets, Bucket{Label: phrase, Count: counts[phrase]})
	}
	return buckets
}

package engine

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/openvoices/insights-backend/internal/dataset"
)

func TestCategoryBreakdown(t *testing.T) {
	ds := testDataset(t)
	subset, err := FilterRows(ds, "q1", &Filter{Countries: []string{"KE"}})
	if err != nil {
		t.Fatalf("FilterRows: %v", err)
	}

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindCategoryBreakdown}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("total: want=2 got=%d", result.Total)
	}
	if len(result.Categories) != 1 {
		t.Fatalf("parent groups: want=1 got=%d", len(result.Categories))
	}

	group := result.Categories[0]
	if group.Code != "HEALTH" || group.Count != 2 {
		t.Fatalf("parent group: got %+v", group)
	}

	// Declaration order, zero-count categories kept and flagged.
	want := []Bucket{
		{Code: "A1", Label: "Access to care", Count: 1},
		{Code: "A2", Label: "Quality of care", Count: 1},
		{Code: "A3", Label: "Affordability", Count: 0, NoResponses: true},
	}
	if !reflect.DeepEqual(group.Buckets, want) {
		t.Fatalf("buckets:\nwant %+v\ngot  %+v", want, group.Buckets)
	}
}

func TestCategoryBreakdownBucketSumMatchesCodedRows(t *testing.T) {
	ds := testDataset(t)
	subset, err := FilterRows(ds, "q1", nil)
	if err != nil {
		t.Fatalf("FilterRows: %v", err)
	}
	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindCategoryBreakdown}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	sum := 0
	for _, group := range result.Categories {
		for _, b := range group.Buckets {
			sum += b.Count
		}
	}
	// Each fixture row carries exactly one code, so the sum equals the
	// subset size.
	if sum != len(subset) || result.Total != len(subset) {
		t.Fatalf("sum=%d total=%d subset=%d", sum, result.Total, len(subset))
	}
}

func TestDimensionBreakdownOrdering(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindDimensionBreakdown, Dimension: "country"}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(result.Buckets) != 2 {
		t.Fatalf("buckets: want=2 got=%d", len(result.Buckets))
	}
	if result.Buckets[0].Label != "KE" || result.Buckets[0].Count != 2 {
		t.Fatalf("descending count order: got %+v", result.Buckets)
	}
	if result.Buckets[1].Label != "NG" || result.Buckets[1].Count != 1 {
		t.Fatalf("descending count order: got %+v", result.Buckets)
	}
}

func TestDimensionBreakdownAgeBucketNaturalOrder(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindDimensionBreakdown, Dimension: "age_bucket"}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	// All counts tie at 1, so natural age order decides.
	want := []string{"15-19", "20-24", "35-44"}
	for i, label := range want {
		if result.Buckets[i].Label != label {
			t.Fatalf("age bucket order: want %v got %+v", want, result.Buckets)
		}
	}
}

func TestDimensionBreakdownYearLabels(t *testing.T) {
	ds := testDataset(t)
	ds.Rows[0].ResponseYear = 12024
	subset, _ := FilterRows(ds, "q1", nil)

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindDimensionBreakdown, Dimension: "year"}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	labels := map[string]int{}
	for _, b := range result.Buckets {
		labels[b.Label] = b.Count
	}
	// Full decimal rendering, no truncation of wide values.
	if labels["2023"] != 1 || labels["2024"] != 1 || labels["12024"] != 1 {
		t.Fatalf("year labels: %+v", result.Buckets)
	}
}

func TestDimensionBreakdownUnknownDimension(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	_, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindDimensionBreakdown, Dimension: "shoe_size"}, Options{})
	var ferr *FilterError
	if !errors.As(err, &ferr) || ferr.Code != FilterErrorUnknownDimension {
		t.Fatalf("want unknown_dimension, got %v", err)
	}
}

func TestKeywordExtractionUnigrams(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindKeywordExtraction, NGramSize: 1, TopN: 5}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for _, b := range result.Buckets {
		if defaultStopwords[b.Label] {
			t.Fatalf("stopword %q leaked into keywords", b.Label)
		}
	}
	// "more" and "better" are stopwords; content words remain.
	labels := map[string]bool{}
	for _, b := range result.Buckets {
		labels[b.Label] = true
	}
	for _, w := range []string{"access", "clinic", "health", "worker"} {
		if !labels[w] {
			t.Fatalf("expected keyword %q in %+v", w, result.Buckets)
		}
	}
	if labels["more"] || labels["better"] {
		t.Fatalf("stopwords survived: %+v", result.Buckets)
	}
}

func TestKeywordExtractionBigramsSkipStopwordParts(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindKeywordExtraction, NGramSize: 2, TopN: 10}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for _, b := range result.Buckets {
		for _, part := range strings.Fields(b.Label) {
			if defaultStopwords[part] {
				t.Fatalf("bigram %q contains a stopword", b.Label)
			}
		}
	}
	labels := map[string]bool{}
	for _, b := range result.Buckets {
		labels[b.Label] = true
	}
	if !labels["access clinic"] || !labels["health worker"] {
		t.Fatalf("expected bigrams missing: %+v", result.Buckets)
	}
}

func TestAggregateDeterministic(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	first, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindHistogram}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindHistogram}, Options{})
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("identical inputs produced different results")
		}
	}
}

func TestRespondentsSummary(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindRespondentsSummary}, Options{})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if result.Respondents != 3 || result.Total != 3 {
		t.Fatalf("summary: %+v", result)
	}
	want := float64(22+41+17) / 3
	if result.AverageAge != want {
		t.Fatalf("average age: want=%.2f got=%.2f", want, result.AverageAge)
	}
}

type staticLocalizer struct{ prefix string }

func (s staticLocalizer) Translate(_ context.Context, text, _ string) string {
	return s.prefix + text
}

func TestLocalizedLabelsNotCounts(t *testing.T) {
	ds := testDataset(t)
	subset, _ := FilterRows(ds, "q1", nil)

	opts := Options{Localizer: staticLocalizer{prefix: "fr:"}, Language: "fr", DefaultLanguage: "en"}
	result, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindCategoryBreakdown}, opts)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	group := result.Categories[0]
	if group.Label != "fr:Health services" {
		t.Fatalf("parent label not localized: %q", group.Label)
	}
	if group.Buckets[0].Label != "fr:Access to care" || group.Buckets[0].Count != 1 {
		t.Fatalf("bucket: %+v", group.Buckets[0])
	}

	// Default language skips the localizer entirely.
	opts.Language = "en"
	plain, err := Aggregate(context.Background(), ds, subset, Spec{Kind: KindCategoryBreakdown}, opts)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if plain.Categories[0].Label != "Health services" {
		t.Fatalf("default language must pass labels through: %q", plain.Categories[0].Label)
	}
}

func TestAggregateMerged(t *testing.T) {
	ds := testDataset(t)
	keRows, _ := FilterRows(ds, "q1", &Filter{Countries: []string{"KE"}})
	ngRows, _ := FilterRows(ds, "q1", &Filter{Countries: []string{"NG"}})

	result := AggregateMerged(context.Background(), ds.Taxonomy, map[string][]dataset.Row{
		"camp_ke": keRows,
		"camp_ng": ngRows,
	}, Options{})

	if result.Total != 3 {
		t.Fatalf("merged total: want=3 got=%d", result.Total)
	}
	group := result.Categories[0]
	a1 := group.Buckets[0]
	if a1.Code != "A1" || a1.Count != 2 {
		t.Fatalf("merged A1: %+v", a1)
	}
	if a1.ByCampaign["camp_ke"] != 1 || a1.ByCampaign["camp_ng"] != 1 {
		t.Fatalf("campaign attribution: %+v", a1.ByCampaign)
	}
	a2 := group.Buckets[1]
	if a2.Count != 1 || a2.ByCampaign["camp_ke"] != 1 {
		t.Fatalf("merged A2: %+v", a2)
	}
	if _, ok := a2.ByCampaign["camp_ng"]; ok {
		t.Fatalf("A2 must not attribute to camp_ng: %+v", a2.ByCampaign)
	}
}

package engine

import (
	"context"
	"sort"

	"github.com/openvoices/insights-backend/internal/dataset"
	"github.com/openvoices/insights-backend/internal/taxonomy"
)

// AggregateMerged computes a category breakdown across several campaigns
// sharing one taxonomy. Counts are summed per category and attributed per
// campaign so the caller can render a stacked view.
func AggregateMerged(ctx context.Context, tax *taxonomy.Taxonomy, subsets map[string][]dataset.Row, opts Options) *Result {
	campaigns := make([]string, 0, len(subsets))
	for code := range subsets {
		campaigns = append(campaigns, code)
	}
	sort.Strings(campaigns)

	total := 0
	counts := make(map[string]int)
	byCampaign := make(map[string]map[string]int)
	for _, campaign := range campaigns {
		rows := subsets[campaign]
		total += len(rows)
		for _, row := range rows {
			for _, code := range row.Codes {
				counts[code]++
				if byCampaign[code] == nil {
					byCampaign[code] = make(map[string]int)
				}
				byCampaign[code][campaign]++
			}
		}
	}

	result := &Result{Kind: KindCategoryBreakdown, Total: total}
	for _, parent := range tax.Parents() {
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
				ByCampaign:  byCampaign[sub.Code],
			})
		}
		result.Categories = append(result.Categories, group)
	}
	return result
}

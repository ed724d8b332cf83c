package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/platform/objectstore"
	"github.com/openvoices/insights-backend/internal/taxonomy"
)

var (
	ErrEmptyDataset           = errors.New("dataset: no rows survived loading")
	ErrTooManyUnresolvedCodes = errors.New("dataset: unresolved canonical codes exceed tolerance")
	ErrSourceUnavailable      = errors.New("dataset: source unavailable")
	ErrMalformedData          = errors.New("dataset: malformed source data")
)

// uncodableCode marks responses the coding pipeline could not categorize.
// They are removed during loading, as the original ingest does.
const uncodableCode = "UNCODABLE"

// Loader resolves a campaign source into a validated Dataset.
type Loader struct {
	log                   *logger.Logger
	store                 objectstore.Store
	httpClient            *http.Client
	maxUnresolvedFraction float64
}

func NewLoader(log *logger.Logger, store objectstore.Store, fetchTimeout time.Duration, maxUnresolvedFraction float64) *Loader {
	return &Loader{
		log:                   log.With("service", "DatasetLoader"),
		store:                 store,
		httpClient:            &http.Client{Timeout: fetchTimeout},
		maxUnresolvedFraction: maxUnresolvedFraction,
	}
}

// Load fetches, parses and validates a campaign dataset. Rows missing a
// required field are dropped and counted; rows whose canonical codes do not
// resolve against the taxonomy are dropped and counted, and fail the load
// only past the configured fraction.
func (l *Loader) Load(ctx context.Context, campaignCode string, src Source, tax *taxonomy.Taxonomy) (*Dataset, error) {
	raw, err := l.fetch(ctx, src)
	if err != nil {
		return nil, err
	}

	header, records, err := parseCSV(raw)
	if err != nil {
		return nil, err
	}

	questionKeys, err := findQuestionKeys(header)
	if err != nil {
		return nil, err
	}
	col := indexColumns(header)
	if _, ok := col["alpha2country"]; !ok {
		return nil, fmt.Errorf("%w: required column alpha2country not found", ErrMalformedData)
	}

	ds := &Dataset{
		CampaignCode: campaignCode,
		Taxonomy:     tax,
		QuestionKeys: questionKeys,
		LoadedAt:     time.Now().UTC(),
		Source:       src,
	}

	candidates := 0
	for recordIdx, record := range records {
		for _, q := range questionKeys {
			rawText := fieldAt(record, col, q+"_response")
			if rawText == "" {
				rawText = fieldAt(record, col, q+"_raw_response")
			}
			canonical := fieldAt(record, col, q+"_canonical_code")
			country := strings.ToUpper(fieldAt(record, col, "alpha2country"))

			if rawText == "" || canonical == "" || country == "" {
				ds.DroppedRows++
				continue
			}
			if canonical == uncodableCode {
				ds.DroppedRows++
				continue
			}
			candidates++

			codes, parents, ok := resolveCodes(canonical, tax)
			if !ok {
				ds.UnresolvedRows++
				continue
			}

			lemmatized := fieldAt(record, col, q+"_lemmatized")
			if lemmatized == "" {
				lemmatized = strings.ToLower(rawText)
			}

			respondentID := fieldAt(record, col, "respondent_id")
			if respondentID == "" {
				respondentID = strconv.Itoa(recordIdx)
			}

			row := Row{
				RespondentID:  respondentID,
				QuestionKey:   q,
				RawText:       rawText,
				Lemmatized:    lemmatized,
				Tokens:        strings.Fields(lemmatized),
				Codes:         codes,
				ParentCodes:   parents,
				CountryAlpha2: country,
				Region:        fieldAt(record, col, "region"),
				Province:      fieldAt(record, col, "province"),
				Gender:        normalizePreferNotToSay(fieldAt(record, col, "gender")),
				Profession:    fieldAt(record, col, "profession"),
				Setting:       titleCase(normalizePreferNotToSay(fieldAt(record, col, "setting"))),
				DataSource:    fieldAt(record, col, "data_source"),
			}

			age := normalizePreferNotToSay(fieldAt(record, col, "age"))
			row.Age = age
			row.AgeNum = -1
			if n, err := strconv.Atoi(age); err == nil {
				row.AgeNum = n
				row.AgeBucket = AgeBucketFor(n)
			} else {
				// Non-numeric ages are already bucket labels (or a refusal).
				row.AgeBucket = age
			}

			if year, err := strconv.Atoi(fieldAt(record, col, "response_year")); err == nil {
				row.ResponseYear = year
			}
			if ts := fieldAt(record, col, "ingestion_time"); ts != "" {
				row.IngestionTime = parseIngestionTime(ts)
			}

			ds.Rows = append(ds.Rows, row)
		}
	}

	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("%w: campaign %q source %s", ErrEmptyDataset, campaignCode, src)
	}
	if candidates > 0 {
		fraction := float64(ds.UnresolvedRows) / float64(candidates)
		if fraction > l.maxUnresolvedFraction {
			return nil, fmt.Errorf("%w: campaign %q: %d of %d rows (max fraction %.2f)",
				ErrTooManyUnresolvedCodes, campaignCode, ds.UnresolvedRows, candidates, l.maxUnresolvedFraction)
		}
	}

	buildInventories(ds)

	l.log.Info("Loaded campaign dataset",
		"campaign", campaignCode,
		"source", src.String(),
		"rows", len(ds.Rows),
		"dropped", ds.DroppedRows,
		"unresolved", ds.UnresolvedRows,
	)
	return ds, nil
}

func (l *Loader) fetch(ctx context.Context, src Source) ([]byte, error) {
	switch src.Kind {
	case SourceLocalFile:
		data, err := os.ReadFile(src.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: read file %q: %v", ErrSourceUnavailable, src.Value, err)
		}
		return data, nil
	case SourceURL:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Value, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request for %q: %v", ErrSourceUnavailable, src.Value, err)
		}
		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch %q: %v", ErrSourceUnavailable, src.Value, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: fetch %q: status %d", ErrSourceUnavailable, src.Value, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body of %q: %v", ErrSourceUnavailable, src.Value, err)
		}
		return data, nil
	case SourceObjectKey:
		if l.store == nil {
			return nil, fmt.Errorf("%w: no object store configured for key %q", ErrSourceUnavailable, src.Value)
		}
		data, err := l.store.Get(ctx, src.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: object %q: %v", ErrSourceUnavailable, src.Value, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown source kind %q", ErrSourceUnavailable, src.Kind)
	}
}

func parseCSV(raw []byte) (header []string, records [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1

	header, err = r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read header: %v", ErrMalformedData, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
		}
		records = append(records, record)
	}
	return header, records, nil
}

// findQuestionKeys discovers q1, q2, ... from the header. A question key
// needs its response column and its canonical-code column.
func findQuestionKeys(header []string) ([]string, error) {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var keys []string
	seen := make(map[string]bool)
	for _, h := range header {
		var q string
		switch {
		case strings.HasPrefix(h, "q") && strings.HasSuffix(h, "_raw_response"):
			q = strings.TrimSuffix(h, "_raw_response")
		case strings.HasPrefix(h, "q") && strings.HasSuffix(h, "_response"):
			q = strings.TrimSuffix(h, "_response")
		default:
			continue
		}
		if !isNumeric(q[1:]) || seen[q] {
			continue
		}
		if !present[q+"_canonical_code"] {
			return nil, fmt.Errorf("%w: required column %s_canonical_code not found", ErrMalformedData, q)
		}
		seen[q] = true
		keys = append(keys, q)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: required q1_response column not found", ErrMalformedData)
	}
	// Numeric order, so q10 follows q9.
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i][1:])
		b, _ := strconv.Atoi(keys[j][1:])
		return a < b
	})
	return keys, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func indexColumns(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	return col
}

func fieldAt(record []string, col map[string]int, name string) string {
	idx, ok := col[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// resolveCodes splits a slash-separated canonical code and resolves every
// part. A single unresolvable part rejects the whole row.
func resolveCodes(canonical string, tax *taxonomy.Taxonomy) (codes, parents []string, ok bool) {
	parentSet := make(map[string]bool)
	for _, part := range strings.Split(canonical, "/") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := tax.Resolve(part); err != nil {
			return nil, nil, false
		}
		codes = append(codes, part)
		if parent, found := tax.ParentOf(part); found {
			parentSet[parent] = true
		}
	}
	if len(codes) == 0 {
		return nil, nil, false
	}
	for parent := range parentSet {
		parents = append(parents, parent)
	}
	sort.Strings(parents)
	return codes, parents, true
}

func normalizePreferNotToSay(value string) string {
	if strings.EqualFold(value, "prefer not to say") {
		return "Prefer not to say"
	}
	return value
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	words := strings.Fields(strings.ToLower(value))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func parseIngestionTime(value string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

// AgeBucketFor maps a numeric age onto the dashboards' default bucket set.
func AgeBucketFor(age int) string {
	switch {
	case age >= 55:
		return "55+"
	case age >= 45:
		return "45-54"
	case age >= 35:
		return "35-44"
	case age >= 25:
		return "25-34"
	case age >= 20:
		return "20-24"
	case age >= 15:
		return "15-19"
	case age >= 10:
		return "10-14"
	case age >= 0:
		return "< 10"
	default:
		return "N/A"
	}
}

// buildInventories derives the distinct-value lists the dashboards present
// as filter options. Categorical inventories are ordered by descending
// frequency with first-seen tie-break; age buckets sort by their lower
// bound.
func buildInventories(ds *Dataset) {
	ds.RegionsByCountry = make(map[string][]string)

	countrySet := make(map[string]bool)
	regionSets := make(map[string]map[string]bool)
	genderCounts := newValueCounter()
	professionCounts := newValueCounter()
	settingCounts := newValueCounter()
	ageSet := make(map[string]bool)
	bucketSet := make(map[string]bool)
	yearSet := make(map[int]bool)

	for _, row := range ds.Rows {
		countrySet[row.CountryAlpha2] = true
		if row.Region != "" {
			if regionSets[row.CountryAlpha2] == nil {
				regionSets[row.CountryAlpha2] = make(map[string]bool)
			}
			regionSets[row.CountryAlpha2][row.Region] = true
		}
		genderCounts.add(row.Gender)
		professionCounts.add(row.Profession)
		settingCounts.add(row.Setting)
		if row.Age != "" {
			ageSet[row.Age] = true
		}
		if row.AgeBucket != "" {
			bucketSet[row.AgeBucket] = true
		}
		if row.ResponseYear != 0 {
			yearSet[row.ResponseYear] = true
		}
	}

	for country := range countrySet {
		ds.Countries = append(ds.Countries, country)
	}
	sort.Strings(ds.Countries)

	for country, regions := range regionSets {
		list := make([]string, 0, len(regions))
		for region := range regions {
			list = append(list, region)
		}
		sort.Strings(list)
		ds.RegionsByCountry[country] = list
	}

	ds.Genders = genderCounts.byFrequency()
	ds.Professions = professionCounts.byFrequency()
	ds.Settings = settingCounts.byFrequency()

	for age := range ageSet {
		ds.Ages = append(ds.Ages, age)
	}
	SortAgeLabels(ds.Ages)

	for bucket := range bucketSet {
		ds.AgeBuckets = append(ds.AgeBuckets, bucket)
	}
	SortAgeLabels(ds.AgeBuckets)

	for year := range yearSet {
		ds.ResponseYears = append(ds.ResponseYears, year)
	}
	sort.Ints(ds.ResponseYears)
}

type valueCounter struct {
	counts map[string]int
	order  []string
}

func newValueCounter() *valueCounter {
	return &valueCounter{counts: make(map[string]int)}
}

func (c *valueCounter) add(value string) {
	if value == "" {
		return
	}
	if _, seen := c.counts[value]; !seen {
		c.order = append(c.order, value)
	}
	c.counts[value]++
}

func (c *valueCounter) byFrequency() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	sort.SliceStable(out, func(i, j int) bool {
		return c.counts[out[i]] > c.counts[out[j]]
	})
	return out
}

// SortAgeLabels orders age labels by the first number they contain, with
// "< 10" style labels first and non-numeric labels last.
func SortAgeLabels(values []string) {
	sort.SliceStable(values, func(i, j int) bool {
		a, aok := leadingNumber(values[i])
		b, bok := leadingNumber(values[j])
		if aok != bok {
			return aok
		}
		if !aok {
			return values[i] < values[j]
		}
		return a < b
	})
}

func leadingNumber(value string) (int, bool) {
	if strings.HasPrefix(value, "<") {
		return 0, true
	}
	start := -1
	for i, r := range value {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, _ := strconv.Atoi(value[start:i])
			return n, true
		}
	}
	if start >= 0 {
		n, _ := strconv.Atoi(value[start:])
		return n, true
	}
	return 0, false
}

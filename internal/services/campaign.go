package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/openvoices/insights-backend/internal/config"
	"github.com/openvoices/insights-backend/internal/dataset"
	"github.com/openvoices/insights-backend/internal/engine"
	"github.com/openvoices/insights-backend/internal/export"
	"github.com/openvoices/insights-backend/internal/localization"
	"github.com/openvoices/insights-backend/internal/platform/logger"
)

// CampaignService orchestrates one query's flow: dataset lookup, filtering,
// aggregation and localization.
type CampaignService struct {
	log             *logger.Logger
	configs         map[string]*config.CampaignConfig
	cache           *dataset.Cache
	translations    *localization.Cache
	exports         *export.Builder
	defaultLanguage string

	// stopwords per campaign, built once from config extras.
	stopwords map[string]map[string]bool
}

func NewCampaignService(
	log *logger.Logger,
	configs map[string]*config.CampaignConfig,
	cache *dataset.Cache,
	translations *localization.Cache,
	exports *export.Builder,
	defaultLanguage string,
) *CampaignService {
	stopwords := make(map[string]map[string]bool, len(configs))
	for code, cfg := range configs {
		stopwords[code] = engine.BuildStopwords(cfg.ExtraStopwords)
	}
	return &CampaignService{
		log:             log.With("service", "CampaignService"),
		configs:         configs,
		cache:           cache,
		translations:    translations,
		exports:         exports,
		defaultLanguage: defaultLanguage,
		stopwords:       stopwords,
	}
}

// Campaigns lists configured campaign codes in stable order.
func (s *CampaignService) Campaigns() []string {
	return config.CampaignCodes(s.configs)
}

// Loading reports whether any dataset load is in flight, for readiness.
func (s *CampaignService) Loading() bool {
	return s.cache.Loading()
}

// Meta is the display metadata a dashboard needs before any data query.
type Meta struct {
	Code                   string            `json:"campaign_code"`
	DashboardName          string            `json:"dashboard_name"`
	SEOTitle               string            `json:"seo_title,omitempty"`
	SEOMetaDescription     string            `json:"seo_meta_description,omitempty"`
	RespondentNounSingular string            `json:"respondent_noun_singular"`
	RespondentNounPlural   string            `json:"respondent_noun_plural"`
	VideoLink              string            `json:"video_link,omitempty"`
	AboutUsLink            string            `json:"about_us_link,omitempty"`
	Questions              map[string]string `json:"questions"`
}

func (s *CampaignService) Meta(campaign, language string) (*Meta, error) {
	cfg, ok := s.configs[campaign]
	if !ok {
		return nil, fmt.Errorf("%w: %q", dataset.ErrUnknownCampaign, campaign)
	}
	meta := &Meta{
		Code:                   cfg.Code,
		DashboardName:          s.localize(cfg.DashboardName, language),
		SEOTitle:               cfg.SEOTitle,
		SEOMetaDescription:     cfg.SEOMetaDescription,
		RespondentNounSingular: s.localize(cfg.RespondentNounSingular, language),
		RespondentNounPlural:   s.localize(cfg.RespondentNounPlural, language),
		VideoLink:              cfg.VideoLink,
		AboutUsLink:            cfg.AboutUsLink,
		Questions:              make(map[string]string, len(cfg.Questions)),
	}
	for key, question := range cfg.Questions {
		meta.Questions[key] = s.localize(question, language)
	}
	return meta, nil
}

func (s *CampaignService) localize(text, language string) string {
	if s.translations == nil || language == "" || language == s.defaultLanguage {
		return text
	}
	return s.translations.Translate(context.Background(), text, language)
}

func (s *CampaignService) options(campaign, language string) engine.Options {
	var loc engine.Localizer
	if s.translations != nil {
		loc = s.translations
	}
	return engine.Options{
		Localizer:       loc,
		Language:        language,
		DefaultLanguage: s.defaultLanguage,
		Stopwords:       s.stopwords[campaign],
	}
}

// Query filters one campaign's question and aggregates the subset.
func (s *CampaignService) Query(ctx context.Context, campaign, questionKey string, f *engine.Filter, spec engine.Spec, language string) (*engine.Result, error) {
	ds, err := s.cache.Get(ctx, campaign)
	if err != nil {
		return nil, err
	}
	subset, err := engine.FilterRows(ds, questionKey, f)
	if err != nil {
		return nil, err
	}
	return engine.Aggregate(ctx, ds, subset, spec, s.options(campaign, language))
}

// FilterOptions is the distinct-value inventory the dashboard renders as
// dropdowns. Values come from the loaded dataset, not the filter request.
type FilterOptions struct {
	Countries        []string            `json:"countries"`
	RegionsByCountry map[string][]string `json:"regions_by_country"`
	Genders          []string            `json:"genders"`
	Professions      []string            `json:"professions"`
	Settings         []string            `json:"settings"`
	Ages             []string            `json:"ages"`
	AgeBuckets       []string            `json:"age_buckets"`
	ResponseYears    []int               `json:"response_years"`
	QuestionKeys     []string            `json:"question_keys"`
}

func (s *CampaignService) FilterOptions(ctx context.Context, campaign string) (*FilterOptions, error) {
	ds, err := s.cache.Get(ctx, campaign)
	if err != nil {
		return nil, err
	}
	return &FilterOptions{
		Countries:        ds.Countries,
		RegionsByCountry: ds.RegionsByCountry,
		Genders:          ds.Genders,
		Professions:      ds.Professions,
		Settings:         ds.Settings,
		Ages:             ds.Ages,
		AgeBuckets:       ds.AgeBuckets,
		ResponseYears:    ds.ResponseYears,
		QuestionKeys:     ds.QuestionKeys,
	}, nil
}

// QueryMerged aggregates one predicate set across several campaigns that
// share a taxonomy, attributing counts per campaign. An empty campaign
// list means every configured campaign.
func (s *CampaignService) QueryMerged(ctx context.Context, campaigns []string, questionKey string, f *engine.Filter, language string) (*engine.Result, error) {
	if len(campaigns) == 0 {
		campaigns = s.Campaigns()
	}
	sort.Strings(campaigns)

	subsets := make(map[string][]dataset.Row, len(campaigns))
	var first *dataset.Dataset
	for _, campaign := range campaigns {
		ds, err := s.cache.Get(ctx, campaign)
		if err != nil {
			return nil, fmt.Errorf("services: merged view: campaign %q: %w", campaign, err)
		}
		if first == nil {
			first = ds
		}
		subset, err := engine.FilterRows(ds, questionKey, f)
		if err != nil {
			return nil, err
		}
		subsets[campaign] = subset
	}
	if first == nil {
		return nil, fmt.Errorf("services: merged view: no campaigns")
	}

	// The first campaign's taxonomy shapes the merged breakdown. Codes
	// other campaigns add beyond it are not displayed.
	opts := s.options(campaigns[0], language)
	return engine.AggregateMerged(ctx, first.Taxonomy, subsets, opts), nil
}

// Export renders the filtered subset as a downloadable artifact.
func (s *CampaignService) Export(ctx context.Context, campaign, questionKey string, f *engine.Filter) (*export.Artifact, error) {
	ds, err := s.cache.Get(ctx, campaign)
	if err != nil {
		return nil, err
	}
	subset, err := engine.FilterRows(ds, questionKey, f)
	if err != nil {
		return nil, err
	}
	return s.exports.Build(ctx, campaign, questionKey, f, subset)
}

// Reload refreshes one campaign's dataset from its source.
func (s *CampaignService) Reload(ctx context.Context, campaign string) error {
	_, err := s.cache.Reload(ctx, campaign)
	return err
}

// ReloadAll refreshes every campaign, returning the first error after
// attempting all of them.
func (s *CampaignService) ReloadAll(ctx context.Context) error {
	var firstErr error
	for _, campaign := range s.cache.Campaigns() {
		if _, err := s.cache.Reload(ctx, campaign); err != nil {
			s.log.Error("reload failed", "campaign", campaign, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Evict drops one campaign's cached dataset.
func (s *CampaignService) Evict(campaign string) {
	s.cache.Evict(campaign)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openvoices/insights-backend/internal/taxonomy"
)

// CampaignConfig is one campaign's configuration file. Display metadata is
// passed through to the dashboard untouched.
type CampaignConfig struct {
	Code                   string `yaml:"campaign_code"`
	DashboardName          string `yaml:"dashboard_name"`
	SEOTitle               string `yaml:"seo_title"`
	SEOMetaDescription     string `yaml:"seo_meta_description"`
	RespondentNounSingular string `yaml:"respondent_noun_singular"`
	RespondentNounPlural   string `yaml:"respondent_noun_plural"`
	VideoLink              string `yaml:"video_link"`
	AboutUsLink            string `yaml:"about_us_link"`

	// Questions that were asked to respondents, keyed q1, q2, ...
	Questions map[string]string `yaml:"questions"`

	// Exactly one source must be set.
	File           string `yaml:"file"`
	FileLink       string `yaml:"file_link"`
	CloudObjectKey string `yaml:"cloud_object_key"`

	ParentCategories []taxonomy.ParentCategory `yaml:"parent_categories"`
	ExtraStopwords   []string                  `yaml:"extra_stopwords"`

	// Filepath is filled while loading the config when File is set.
	Filepath string `yaml:"-"`
}

func (c *CampaignConfig) validate() error {
	if c.Code == "" {
		return fmt.Errorf("campaign_code is empty")
	}
	for key := range c.Questions {
		if !isQuestionKey(key) {
			return fmt.Errorf("invalid question code %q", key)
		}
	}
	sources := 0
	for _, s := range []string{c.File, c.FileLink, c.CloudObjectKey} {
		if s != "" {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("campaign %q: exactly one of file, file_link, cloud_object_key must be set", c.Code)
	}
	if len(c.ParentCategories) == 0 {
		return fmt.Errorf("campaign %q: parent_categories is empty", c.Code)
	}
	if c.RespondentNounSingular == "" {
		c.RespondentNounSingular = "respondent"
	}
	if c.RespondentNounPlural == "" {
		c.RespondentNounPlural = "respondents"
	}
	return nil
}

func isQuestionKey(key string) bool {
	if !strings.HasPrefix(key, "q") || len(key) < 2 {
		return false
	}
	for _, r := range key[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LoadCampaigns reads every campaign config under dir. Layout mirrors the
// dashboards' config repository: one folder per campaign holding
// config.yaml and, for file-sourced campaigns, the CSV next to it.
func LoadCampaigns(dir string) (map[string]*CampaignConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("config: read campaigns dir %q: %w", dir, err)
	}

	configs := make(map[string]*CampaignConfig)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == "example" {
			continue
		}
		configPath := filepath.Join(dir, entry.Name(), "config.yaml")
		raw, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("config: read %q: %w", configPath, err)
		}

		var cfg CampaignConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", configPath, err)
		}
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("config: %q: %w", configPath, err)
		}

		if cfg.File != "" {
			cfg.Filepath = filepath.Join(dir, entry.Name(), cfg.File)
			if _, err := os.Stat(cfg.Filepath); err != nil {
				return nil, fmt.Errorf("config: campaign %q: file %q not found in config folder", cfg.Code, cfg.File)
			}
		}

		if _, exists := configs[cfg.Code]; exists {
			return nil, fmt.Errorf("config: duplicate campaign code %q", cfg.Code)
		}
		configs[cfg.Code] = &cfg
	}
	return configs, nil
}

// CampaignCodes returns the configured campaign codes in stable order.
func CampaignCodes(configs map[string]*CampaignConfig) []string {
	codes := make([]string, 0, len(configs))
	for code := range configs {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

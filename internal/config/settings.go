package config

import (
	"time"

	"github.com/openvoices/insights-backend/internal/platform/envutil"
	"github.com/openvoices/insights-backend/internal/platform/logger"
)

// Settings holds process-level configuration. Thresholds and cadences the
// dashboards team tunes per deployment are named here instead of being
// hard-coded at call sites.
type Settings struct {
	Port                      string
	CampaignsConfigDir        string
	ObjectStoreBucket         string
	DatasetReloadCron         string
	UnresolvedCodeMaxFraction float64
	TranslationsEnabled       bool
	DefaultLanguage           string
	GoogleProjectID           string
	SourceFetchTimeout        time.Duration
}

func LoadSettings(log *logger.Logger) Settings {
	return Settings{
		Port:                      envutil.GetEnv("PORT", "8000", log),
		CampaignsConfigDir:        envutil.GetEnv("CAMPAIGNS_CONFIG_DIR", "campaigns-config", log),
		ObjectStoreBucket:         envutil.GetEnv("OBJECT_STORE_BUCKET", "", log),
		DatasetReloadCron:         envutil.GetEnv("DATASET_RELOAD_CRON", "0 */12 * * *", log),
		UnresolvedCodeMaxFraction: envutil.GetEnvAsFloat("UNRESOLVED_CODE_MAX_FRACTION", 0.10, log),
		TranslationsEnabled:       envutil.GetEnvAsBool("TRANSLATIONS_ENABLED", false, log),
		DefaultLanguage:           envutil.GetEnv("DEFAULT_LANGUAGE", "en", log),
		GoogleProjectID:           envutil.GetEnv("GOOGLE_PROJECT_ID", "", log),
		SourceFetchTimeout:        time.Duration(envutil.GetEnvAsInt("SOURCE_FETCH_TIMEOUT_SECONDS", 60, log)) * time.Second,
	}
}

package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/openvoices/insights-backend/internal/dataset"
	"github.com/openvoices/insights-backend/internal/engine"
	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/platform/objectstore"
)

var (
	ErrExportTimeout      = errors.New("export: timed out")
	ErrStorageUnavailable = errors.New("export: storage unavailable")
)

// Artifact is one finished export.
type Artifact struct {
	Key         string `json:"key"`
	URL         string `json:"url,omitempty"`
	ContentType string `json:"content_type"`
	// Data is populated only for transient artifacts that never reached
	// object storage.
	Data   []byte `json:"-"`
	Cached bool   `json:"cached"`
}

// Builder renders filtered subsets as downloadable files, caching each
// artifact in object storage keyed by its inputs so identical requests are
// served without rebuilding.
type Builder struct {
	log   *logger.Logger
	store objectstore.Store
}

func NewBuilder(log *logger.Logger, store objectstore.Store) *Builder {
	return &Builder{log: log.With("service", "ExportBuilder"), store: store}
}

// cacheKeyFor derives a deterministic object key from everything that
// shapes the artifact's content.
func cacheKeyFor(campaign, questionKey string, f *engine.Filter) (string, error) {
	predicate, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("export: marshal filter: %w", err)
	}
	sum := sha256.Sum256([]byte(campaign + "|" + questionKey + "|" + string(predicate) + "|csv"))
	return "exports/" + hex.EncodeToString(sum[:]) + ".csv", nil
}

// Build returns the artifact for a subset, serving from cache when the
// same campaign, question and predicate set was exported before.
func (b *Builder) Build(ctx context.Context, campaign, questionKey string, f *engine.Filter, subset []dataset.Row) (*Artifact, error) {
	key, err := cacheKeyFor(campaign, questionKey, f)
	if err != nil {
		return nil, err
	}

	if b.store != nil {
		exists, err := b.store.Exists(ctx, key)
		if err == nil && exists {
			b.log.Debug("export served from cache", "campaign", campaign, "key", key)
			return &Artifact{Key: key, URL: b.store.PublicURL(key), ContentType: "text/csv", Cached: true}, nil
		}
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExportTimeout, ctx.Err())
		}
	}

	data, err := renderCSV(subset)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportTimeout, ctx.Err())
	}

	if b.store == nil {
		// No storage configured: hand back a transient artifact.
		return &Artifact{
			Key:         "transient/" + uuid.NewString() + ".csv",
			ContentType: "text/csv",
			Data:        data,
		}, nil
	}

	if err := b.store.Put(ctx, key, data, "text/csv"); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrExportTimeout, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	b.log.Info("export built", "campaign", campaign, "rows", len(subset), "key", key)
	return &Artifact{Key: key, URL: b.store.PublicURL(key), ContentType: "text/csv", Data: data}, nil
}

var exportHeader = []string{
	"respondent_id", "question", "response", "canonical_codes",
	"country", "region", "province", "gender", "profession", "setting",
	"age", "age_bucket", "response_year",
}

func renderCSV(subset []dataset.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("export: write header: %w", err)
	}
	for _, row := range subset {
		year := ""
		if row.ResponseYear != 0 {
			year = strconv.Itoa(row.ResponseYear)
		}
		record := []string{
			row.RespondentID, row.QuestionKey, row.RawText, joinCodes(row.Codes),
			row.CountryAlpha2, row.Region, row.Province, row.Gender,
			row.Profession, row.Setting, row.Age, row.AgeBucket, year,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("export: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("export: flush: %w", err)
	}
	return buf.Bytes(), nil
}

func joinCodes(codes []string) string {
	out := ""
	for i, code := range codes {
		if i > 0 {
			out += "/"
		}
		out += code
	}
	return out
}

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/openvoices/insights-backend/internal/dataset"
	"github.com/openvoices/insights-backend/internal/engine"
	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/platform/objectstore"
)

func sampleRows() []dataset.Row {
	return []dataset.Row{
		{
			RespondentID: "r1", QuestionKey: "q1",
			RawText: "Better access to clinics", Codes: []string{"A1", "A2"},
			CountryAlpha2: "KE", Region: "Nairobi", Gender: "Female",
			Profession: "Nurse", Setting: "Urban",
			Age: "22", AgeBucket: "20-24", ResponseYear: 2023,
		},
		{
			RespondentID: "r2", QuestionKey: "q1",
			RawText: "More health workers", Codes: []string{"A1"},
			CountryAlpha2: "NG", Gender: "Female", Age: "17",
			AgeBucket: "15-19", ResponseYear: 2024,
		},
	}
}

func TestBuildWritesThroughToStore(t *testing.T) {
	store := objectstore.NewMemory()
	builder := NewBuilder(logger.NewNop(), store)
	filter := &engine.Filter{Countries: []string{"KE"}}

	artifact, err := builder.Build(context.Background(), "testcamp", "q1", filter, sampleRows())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if artifact.Cached {
		t.Fatalf("first build must not be cached")
	}
	if !strings.HasPrefix(artifact.Key, "exports/") || !strings.HasSuffix(artifact.Key, ".csv") {
		t.Fatalf("artifact key: %q", artifact.Key)
	}

	stored, err := store.Get(context.Background(), artifact.Key)
	if err != nil {
		t.Fatalf("store.Get: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(stored)).ReadAll()
	if err != nil {
		t.Fatalf("parse stored csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records: want header+2 got=%d", len(records))
	}
	if records[1][0] != "r1" || records[1][3] != "A1/A2" {
		t.Fatalf("first record: %v", records[1])
	}
}

func TestBuildServesIdenticalRequestFromCache(t *testing.T) {
	store := objectstore.NewMemory()
	builder := NewBuilder(logger.NewNop(), store)
	filter := &engine.Filter{Countries: []string{"KE"}}

	if _, err := builder.Build(context.Background(), "testcamp", "q1", filter, sampleRows()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	again, err := builder.Build(context.Background(), "testcamp", "q1", filter, sampleRows())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !again.Cached {
		t.Fatalf("identical request must be served from cache")
	}
}

func TestBuildDistinctPredicatesGetDistinctKeys(t *testing.T) {
	store := objectstore.NewMemory()
	builder := NewBuilder(logger.NewNop(), store)

	a, err := builder.Build(context.Background(), "testcamp", "q1", &engine.Filter{Countries: []string{"KE"}}, sampleRows())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b, err := builder.Build(context.Background(), "testcamp", "q1", &engine.Filter{Countries: []string{"NG"}}, sampleRows())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.Key == b.Key {
		t.Fatalf("different predicates must not collide on %q", a.Key)
	}
}

func TestBuildWithoutStoreReturnsTransientArtifact(t *testing.T) {
	builder := NewBuilder(logger.NewNop(), nil)

	artifact, err := builder.Build(context.Background(), "testcamp", "q1", nil, sampleRows())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.HasPrefix(artifact.Key, "transient/") {
		t.Fatalf("artifact key: %q", artifact.Key)
	}
	if len(artifact.Data) == 0 {
		t.Fatalf("transient artifact must carry its data")
	}
}

func TestBuildTimeout(t *testing.T) {
	store := objectstore.NewMemory()
	builder := NewBuilder(logger.NewNop(), store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := builder.Build(ctx, "testcamp", "q1", nil, sampleRows())
	if !errors.Is(err, ErrExportTimeout) {
		t.Fatalf("want ErrExportTimeout, got %v", err)
	}
}

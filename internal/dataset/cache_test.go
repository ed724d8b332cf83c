package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openvoices/insights-backend/internal/platform/logger"
)

const fixtureCSVv2 = `alpha2country,age,gender,region,province,profession,setting,response_year,q1_response,q1_canonical_code,q1_lemmatized
KE,22,Female,Nairobi,,Nurse,Urban,2023,Better access to clinics,A1,better access clinic
NG,28,Female,Lagos,,Midwife,Urban,2024,Safe delivery,A2,safe delivery
`

func newTestCache(t *testing.T) (*Cache, string) {
	t.Helper()
	path := writeFixture(t, fixtureCSV)
	cache := NewCache(logger.NewNop(), newTestLoader(nil))
	cache.Register("testcamp", Source{Kind: SourceLocalFile, Value: path}, testTaxonomy(t))
	return cache, path
}

func TestGetLoadsOnFirstAccess(t *testing.T) {
	cache, _ := newTestCache(t)

	ds, err := cache.Get(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(ds.Rows) != 3 {
		t.Fatalf("rows: want=3 got=%d", len(ds.Rows))
	}

	again, err := cache.Get(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again != ds {
		t.Fatalf("second Get must return the cached snapshot")
	}
}

func TestGetUnknownCampaign(t *testing.T) {
	cache, _ := newTestCache(t)
	if _, err := cache.Get(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown campaign")
	}
}

func TestReloadSwapsAtomically(t *testing.T) {
	cache, path := newTestCache(t)

	old, err := cache.Get(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := os.WriteFile(path, []byte(fixtureCSVv2), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}
	fresh, err := cache.Reload(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// The snapshot a reader holds is untouched by the swap.
	if len(old.Rows) != 3 {
		t.Fatalf("old snapshot mutated: rows=%d", len(old.Rows))
	}
	if len(fresh.Rows) != 2 {
		t.Fatalf("fresh snapshot rows: want=2 got=%d", len(fresh.Rows))
	}

	current, err := cache.Get(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current != fresh {
		t.Fatalf("Get after reload must observe the new snapshot")
	}
}

func TestFailedReloadKeepsPreviousDataset(t *testing.T) {
	cache, path := newTestCache(t)

	old, err := cache.Get(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}
	if _, err := cache.Reload(context.Background(), "testcamp"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("want ErrSourceUnavailable, got %v", err)
	}

	current, err := cache.Get(context.Background(), "testcamp")
	if err != nil {
		t.Fatalf("Get after failed reload: %v", err)
	}
	if current != old {
		t.Fatalf("failed reload must keep the previous dataset")
	}
}

func TestEvict(t *testing.T) {
	cache, path := newTestCache(t)

	if _, err := cache.Get(context.Background(), "testcamp"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	cache.Evict("testcamp")

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}
	if _, err := cache.Get(context.Background(), "testcamp"); err == nil {
		t.Fatalf("Get after evict must attempt a fresh load")
	}
}

func TestConcurrentReloadsJoinSingleFetch(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte(fixtureCSV))
	}))
	defer server.Close()

	cache := NewCache(logger.NewNop(), newTestLoader(nil))
	cache.Register("testcamp", Source{Kind: SourceURL, Value: server.URL}, testTaxonomy(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Reload(context.Background(), "testcamp"); err != nil {
				t.Errorf("Reload: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Fatalf("concurrent reloads must share one fetch, got %d", got)
	}
}

func TestConcurrentReadersDuringReload(t *testing.T) {
	cache, path := newTestCache(t)

	if _, err := cache.Get(context.Background(), "testcamp"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := os.WriteFile(path, []byte(fixtureCSVv2), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ds, err := cache.Get(context.Background(), "testcamp")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			// A reader sees fully the old or fully the new dataset.
			if n := len(ds.Rows); n != 3 && n != 2 {
				t.Errorf("reader observed a mixed dataset: rows=%d", n)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := cache.Reload(context.Background(), "testcamp"); err != nil {
			t.Errorf("Reload: %v", err)
		}
	}()
	wg.Wait()
}

package localization

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/platform/objectstore"
)

// ErrTranslationUnavailable reports that a rendering fell back to source
// text. It is informational; callers still receive usable output.
var ErrTranslationUnavailable = errors.New("localization: translation unavailable")

const cacheObjectKey = "translations/translations.json"

// Backend produces translations. The Cloud Translation client satisfies
// this; tests substitute fakes.
type Backend interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
	SupportedLanguages(ctx context.Context) (map[string]struct{}, error)
}

// Cache memoizes translated display strings. Keys are derived from the
// source text's content hash plus the target language, so a changed source
// string naturally misses and re-translates. Entries are only ever added,
// and the last writer for a key wins.
type Cache struct {
	log             *logger.Logger
	backend         Backend
	store           objectstore.Store
	defaultLanguage string

	mu        sync.RWMutex
	entries   map[string]string
	supported map[string]struct{}
	dirty     bool
}

func NewCache(log *logger.Logger, backend Backend, store objectstore.Store, defaultLanguage string) *Cache {
	return &Cache{
		log:             log.With("service", "LocalizationCache"),
		backend:         backend,
		store:           store,
		defaultLanguage: defaultLanguage,
		entries:         make(map[string]string),
	}
}

// Warm loads the persisted cache and the backend's supported-language set.
// Failures leave the cache empty; translation still works, just colder.
func (c *Cache) Warm(ctx context.Context) {
	if c.store != nil {
		data, err := c.store.Get(ctx, cacheObjectKey)
		switch {
		case err == nil:
			entries := make(map[string]string)
			if jsonErr := json.Unmarshal(data, &entries); jsonErr != nil {
				c.log.Warn("persisted translation cache is corrupt, starting empty", "error", jsonErr)
			} else {
				c.mu.Lock()
				c.entries = entries
				c.mu.Unlock()
				c.log.Info("translation cache warmed", "entries", len(entries))
			}
		case errors.Is(err, objectstore.ErrNotFound):
			c.log.Info("no persisted translation cache, starting empty")
		default:
			c.log.Warn("could not read persisted translation cache", "error", err)
		}
	}

	if c.backend != nil {
		supported, err := c.backend.SupportedLanguages(ctx)
		if err != nil {
			c.log.Warn("could not list supported languages", "error", err)
			return
		}
		c.mu.Lock()
		c.supported = supported
		c.mu.Unlock()
	}
}

func cacheKey(text, language string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:]) + ":" + language
}

// Translate renders text in the target language. The default language and
// blank targets pass through unchanged. Any failure falls back to the
// source text so a response is never blocked on translation.
func (c *Cache) Translate(ctx context.Context, text, targetLanguage string) string {
	if text == "" || targetLanguage == "" || targetLanguage == c.defaultLanguage {
		return text
	}
	if c.backend == nil {
		return text
	}

	key := cacheKey(text, targetLanguage)
	c.mu.RLock()
	cached, hit := c.entries[key]
	supported := c.supported
	c.mu.RUnlock()
	if hit {
		return cached
	}

	if supported != nil {
		if _, ok := supported[targetLanguage]; !ok {
			c.log.Debug("unsupported target language, returning source text", "language", targetLanguage)
			return text
		}
	}

	translated, err := c.backend.Translate(ctx, text, targetLanguage)
	if err != nil {
		c.log.Warn("translation failed, returning source text", "language", targetLanguage, "error", err)
		return text
	}

	c.mu.Lock()
	c.entries[key] = translated
	c.dirty = true
	c.mu.Unlock()
	return translated
}

// Languages returns the backend's supported target codes, if known.
func (c *Cache) Languages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.supported))
	for code := range c.supported {
		out = append(out, code)
	}
	return out
}

// Persist writes the cache back to object storage when new entries were
// added since the last persist.
func (c *Cache) Persist(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	data, err := json.Marshal(c.entries)
	count := len(c.entries)
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("localization: marshal cache: %w", err)
	}

	// dirty stays set until the write lands, so a failed persist can be
	// retried by the caller.
	if err := c.store.Put(ctx, cacheObjectKey, data, "application/json"); err != nil {
		return fmt.Errorf("localization: persist cache: %w", err)
	}
	c.mu.Lock()
	if len(c.entries) == count {
		c.dirty = false
	}
	c.mu.Unlock()
	c.log.Info("translation cache persisted", "entries", count)
	return nil
}

package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	myMemoryBaseURL = "https://api.mymemory.translated.net/get"

	translationTTL      = 24 * time.Hour
	translationCacheCap = 1000
)

// Translation is the outcome of a translate call. Translation is
// best-effort: when the provider fails, TranslatedText falls back to the
// original and Warning explains why, but the call itself succeeds.
type Translation struct {
	TranslatedText string `json:"translatedText"`
	OriginalText   string `json:"originalText"`
	Cached         bool   `json:"cached,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

type cacheEntry struct {
	text      string
	timestamp time.Time
}

// TranslationCache is a bounded TTL cache keyed by (text, target language).
// Once full, the oldest-inserted entry is evicted first. The mutex is never
// held across network calls.
type TranslationCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	order   []string
	cap     int
	ttl     time.Duration
	now     func() time.Time
}

// NewTranslationCache creates a cache with the default capacity and TTL.
func NewTranslationCache() *TranslationCache {
	return &TranslationCache{
		entries: make(map[string]cacheEntry),
		cap:     translationCacheCap,
		ttl:     translationTTL,
		now:     time.Now,
	}
}

// WithClock replaces the cache's time source, for deterministic tests.
func (c *TranslationCache) WithClock(now func() time.Time) *TranslationCache {
	c.now = now
	return c
}

// Get returns the cached translation for (text, lang) if one exists and is
// younger than the TTL.
func (c *TranslationCache) Get(text, lang string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[text+"\x00"+lang]
	if !ok || c.now().Sub(entry.timestamp) >= c.ttl {
		return "", false
	}
	return entry.text, true
}

// Put stores a translation, evicting the oldest-inserted entry when full.
func (c *TranslationCache) Put(text, lang, translated string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := text + "\x00" + lang
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.cap && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{text: translated, timestamp: c.now()}
}

// Len reports the number of entries, live or expired.
func (c *TranslationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TranslateClient calls the MyMemory translation API.
type TranslateClient struct {
	baseURL    string
	sourceLang string
	httpClient *http.Client
	cache      *TranslationCache
}

// NewTranslateClient creates a translate client. sourceLang is the language
// the dashboard's content arrives in.
func NewTranslateClient(sourceLang string, httpClient *http.Client, cache *TranslationCache) *TranslateClient {
	if sourceLang == "" {
		sourceLang = "ko"
	}
	return &TranslateClient{
		baseURL:    myMemoryBaseURL,
		sourceLang: sourceLang,
		httpClient: httpClient,
		cache:      cache,
	}
}

// WithBaseURL overrides the provider endpoint, for tests.
func (c *TranslateClient) WithBaseURL(base string) *TranslateClient {
	c.baseURL = base
	return c
}

type myMemoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
}

// Translate translates text into targetLang, trying the cache first. It
// never returns an error for provider failures - the original text comes
// back with a warning instead.
func (c *TranslateClient) Translate(ctx context.Context, text, targetLang string) *Translation {
	if targetLang == "" {
		targetLang = "en"
	}

	if cached, ok := c.cache.Get(text, targetLang); ok {
		return &Translation{TranslatedText: cached, OriginalText: text, Cached: true}
	}

	translated, err := c.fetch(ctx, text, targetLang)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("translation failed, returning original text")
		return &Translation{
			TranslatedText: text,
			OriginalText:   text,
			Warning:        "translation unavailable, showing original text",
		}
	}

	c.cache.Put(text, targetLang, translated)
	return &Translation{TranslatedText: translated, OriginalText: text}
}

func (c *TranslateClient) fetch(ctx context.Context, text, targetLang string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", text)
	params.Set("langpair", c.sourceLang+"|"+targetLang)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build translate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call translation provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translation provider returned HTTP %d", resp.StatusCode)
	}

	var payload myMemoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode translation response: %w", err)
	}
	if payload.ResponseData.TranslatedText == "" {
		return "", fmt.Errorf("translation response missing text: %w", ErrUnavailable)
	}
	return payload.ResponseData.TranslatedText, nil
}

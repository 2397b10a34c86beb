package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/questdeck/questdeck/internal/security"
)

const gnewsBaseURL = "https://gnews.io/api/v4"

// Article is a single normalized headline.
type Article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}

// Headlines is the normalized news response.
type Headlines struct {
	TotalArticles int       `json:"totalArticles"`
	Articles      []Article `json:"articles"`
}

// NewsClient fetches top headlines from GNews.
type NewsClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewNewsClient creates a news client. The http.Client should come from
// NewCachingHTTPClient so repeat requests within the provider's cache
// window don't burn API quota.
func NewNewsClient(apiKey string, httpClient *http.Client) *NewsClient {
	return &NewsClient{apiKey: apiKey, baseURL: gnewsBaseURL, httpClient: httpClient}
}

// WithBaseURL overrides the provider endpoint, for tests.
func (c *NewsClient) WithBaseURL(base string) *NewsClient {
	c.baseURL = base
	return c
}

// Configured reports whether a usable API key was supplied.
func (c *NewsClient) Configured() bool {
	return security.ValidateAPIKey(c.apiKey)
}

// TopHeadlines fetches headlines for a region and language. Transient
// failures are retried a couple of times with exponential backoff; a 4xx
// from the provider is permanent and fails immediately.
func (c *NewsClient) TopHeadlines(ctx context.Context, region, lang string, max int) (*Headlines, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("country", region)
	params.Set("lang", lang)
	params.Set("max", strconv.Itoa(max))

	endpoint := c.baseURL + "/top-headlines?" + params.Encode()

	operation := func() (*Headlines, error) {
		return c.fetch(ctx, endpoint)
	}

	headlines, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("region", region).Msg("news fetch failed")
		return nil, fmt.Errorf("fetch headlines: %w", ErrUnavailable)
	}
	return headlines, nil
}

func (c *NewsClient) fetch(ctx context.Context, endpoint string) (*Headlines, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build news request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call news provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("news provider returned HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news provider returned HTTP %d", resp.StatusCode)
	}

	var headlines Headlines
	if err := json.NewDecoder(resp.Body).Decode(&headlines); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode news response: %w", err))
	}
	if headlines.Articles == nil {
		headlines.Articles = []Article{}
	}
	return &headlines, nil
}

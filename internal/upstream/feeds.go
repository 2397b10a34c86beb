package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	feedTimeout        = 15 * time.Second
	maxItemsPerSource  = 10
	maxFeedBodyBytes   = 2 << 20 // 2MiB per feed
	feedFetchUserAgent = "Mozilla/5.0 (compatible; questdeck/1.0)"
)

// FeedSource is one RSS/Atom feed in the digest configuration.
type FeedSource struct {
	Name     string `yaml:"name" json:"name"`
	URL      string `yaml:"url" json:"url"`
	Category string `yaml:"category" json:"category"`
}

// DefaultFeedSources is the built-in digest feed set, used when no feeds
// config file is supplied.
func DefaultFeedSources() []FeedSource {
	return []FeedSource{
		{Name: "AWS Blog", URL: "https://aws.amazon.com/blogs/aws/feed/", Category: "Cloud"},
		{Name: "Azure Updates", URL: "https://azure.microsoft.com/en-us/blog/feed/", Category: "Cloud"},
		{Name: "Google Cloud Blog", URL: "https://cloudblog.withgoogle.com/rss/", Category: "Cloud"},
		{Name: "HashiCorp Blog", URL: "https://www.hashicorp.com/blog/feed.xml", Category: "Infrastructure"},
		{Name: "Kubernetes Blog", URL: "https://kubernetes.io/feed.xml", Category: "Containers"},
		{Name: "Docker Blog", URL: "https://www.docker.com/blog/feed/", Category: "Containers"},
		{Name: "CNCF Blog", URL: "https://www.cncf.io/feed/", Category: "Containers"},
		{Name: "DevOps.com", URL: "https://devops.com/feed/", Category: "General"},
		{Name: "The New Stack", URL: "https://thenewstack.io/feed/", Category: "General"},
	}
}

// LoadFeedSources reads a YAML feed list. An empty path returns the
// built-in defaults.
func LoadFeedSources(path string) ([]FeedSource, error) {
	if path == "" {
		return DefaultFeedSources(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds config: %w", err)
	}

	var cfg struct {
		Feeds []FeedSource `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse feeds config: %w", err)
	}
	if len(cfg.Feeds) == 0 {
		return nil, fmt.Errorf("feeds config %s lists no feeds", path)
	}
	return cfg.Feeds, nil
}

// FeedItem is one article pulled from a feed.
type FeedItem struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Source      string `json:"source"`
	Category    string `json:"category"`
}

// DigestCategory groups items sharing a category.
type DigestCategory struct {
	Name  string     `json:"name"`
	Items []FeedItem `json:"items"`
}

// Digest is the aggregated feed roundup.
type Digest struct {
	GeneratedAt   string           `json:"generatedAt"`
	TotalArticles int              `json:"totalArticles"`
	SourcesOK     int              `json:"sourcesOk"`
	Categories    []DigestCategory `json:"categories"`
}

// DigestClient fetches the configured feeds and assembles a digest.
type DigestClient struct {
	sources    []FeedSource
	httpClient *http.Client
}

// NewDigestClient creates a digest client over the given sources.
func NewDigestClient(sources []FeedSource, httpClient *http.Client) *DigestClient {
	return &DigestClient{sources: sources, httpClient: httpClient}
}

// Build fetches every source concurrently, each with its own timeout, and
// groups the results by category. Individual feed failures are logged and
// skipped; only a total wipe-out is an error.
func (c *DigestClient) Build(ctx context.Context) (*Digest, error) {
	results := make([][]FeedItem, len(c.sources))

	var wg sync.WaitGroup
	for i, source := range c.sources {
		wg.Add(1)
		go func(i int, source FeedSource) {
			defer wg.Done()
			items, err := c.fetchFeed(ctx, source)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("feed", source.Name).Msg("feed fetch failed")
				return
			}
			results[i] = items
		}(i, source)
	}
	wg.Wait()

	byCategory := make(map[string][]FeedItem)
	total := 0
	sourcesOK := 0
	for _, items := range results {
		if items == nil {
			continue
		}
		sourcesOK++
		for _, item := range items {
			byCategory[item.Category] = append(byCategory[item.Category], item)
			total++
		}
	}

	if total == 0 {
		return nil, fmt.Errorf("build digest: %w", ErrUnavailable)
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	categories := make([]DigestCategory, 0, len(names))
	for _, name := range names {
		categories = append(categories, DigestCategory{Name: name, Items: byCategory[name]})
	}

	return &Digest{
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		TotalArticles: total,
		SourcesOK:     sourcesOK,
		Categories:    categories,
	}, nil
}

func (c *DigestClient) fetchFeed(ctx context.Context, source FeedSource) ([]FeedItem, error) {
	ctx, cancel := context.WithTimeout(ctx, feedTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", feedFetchUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, application/atom+xml, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	items := ParseFeed(string(body), source.Name, source.Category)
	if len(items) > maxItemsPerSource {
		items = items[:maxItemsPerSource]
	}
	return items, nil
}

// Lightweight regex extraction. Proper RSS/Atom conformance is out of
// scope; this only needs to pull titles and links out of well-behaved
// mainstream feeds.
var (
	rssItemPattern  = regexp.MustCompile(`(?s)<item[\s>].*?</item>|<item>.*?</item>`)
	atomEntry       = regexp.MustCompile(`(?s)<entry[\s>].*?</entry>|<entry>.*?</entry>`)
	titlePattern    = regexp.MustCompile(`(?s)<title[^>]*>(.*?)</title>`)
	linkTagPattern  = regexp.MustCompile(`(?s)<link[^>]*>(.*?)</link>`)
	linkHrefPattern = regexp.MustCompile(`<link[^>]*href="([^"]+)"`)
	descPattern     = regexp.MustCompile(`(?s)<description[^>]*>(.*?)</description>|<summary[^>]*>(.*?)</summary>`)
	datePattern     = regexp.MustCompile(`(?s)<pubDate>(.*?)</pubDate>|<published>(.*?)</published>|<updated>(.*?)</updated>`)
	cdataPattern    = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	tagPattern      = regexp.MustCompile(`<[^>]+>`)
)

// ParseFeed extracts items from raw RSS or Atom XML.
func ParseFeed(raw, sourceName, category string) []FeedItem {
	blocks := rssItemPattern.FindAllString(raw, -1)
	if len(blocks) == 0 {
		blocks = atomEntry.FindAllString(raw, -1)
	}

	items := make([]FeedItem, 0, len(blocks))
	for _, block := range blocks {
		title := cleanFeedText(firstGroup(titlePattern.FindStringSubmatch(block)))
		if title == "" {
			continue
		}

		link := ""
		if m := linkHrefPattern.FindStringSubmatch(block); m != nil {
			link = strings.TrimSpace(m[1])
		} else {
			link = cleanFeedText(firstGroup(linkTagPattern.FindStringSubmatch(block)))
		}

		items = append(items, FeedItem{
			Title:       title,
			URL:         link,
			Description: truncate(cleanFeedText(firstGroup(descPattern.FindStringSubmatch(block))), 300),
			Date:        cleanFeedText(firstGroup(datePattern.FindStringSubmatch(block))),
			Source:      sourceName,
			Category:    category,
		})
	}
	return items
}

func firstGroup(match []string) string {
	for i := 1; i < len(match); i++ {
		if match[i] != "" {
			return match[i]
		}
	}
	return ""
}

func cleanFeedText(s string) string {
	if m := cdataPattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

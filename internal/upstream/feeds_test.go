package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<title>Sample Feed</title>
<item>
<title><![CDATA[First &amp; foremost]]></title>
<link>https://example.com/first</link>
<description><![CDATA[<p>Some <b>HTML</b> body</p>]]></description>
<pubDate>Sat, 29 Aug 2026 10:00:00 GMT</pubDate>
</item>
<item>
<title>Second post</title>
<link>https://example.com/second</link>
<description>plain description</description>
<pubDate>Fri, 28 Aug 2026 10:00:00 GMT</pubDate>
</item>
</channel>
</rss>`

const sampleAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Atom Feed</title>
<entry>
<title>Atom entry</title>
<link href="https://example.com/atom-entry"/>
<summary>atom summary</summary>
<updated>2026-08-29T10:00:00Z</updated>
</entry>
</feed>`

func TestParseFeed_rss(t *testing.T) {
	items := ParseFeed(sampleRSS, "Sample", "Cloud")
	require.Len(t, items, 2)

	require.Equal(t, "First & foremost", items[0].Title)
	require.Equal(t, "https://example.com/first", items[0].URL)
	require.Equal(t, "Some HTML body", items[0].Description)
	require.Equal(t, "Sat, 29 Aug 2026 10:00:00 GMT", items[0].Date)
	require.Equal(t, "Sample", items[0].Source)
	require.Equal(t, "Cloud", items[0].Category)

	require.Equal(t, "Second post", items[1].Title)
}

func TestParseFeed_atom(t *testing.T) {
	items := ParseFeed(sampleAtom, "AtomSrc", "Containers")
	require.Len(t, items, 1)
	require.Equal(t, "Atom entry", items[0].Title)
	require.Equal(t, "https://example.com/atom-entry", items[0].URL)
	require.Equal(t, "atom summary", items[0].Description)
}

func TestParseFeed_garbage(t *testing.T) {
	require.Empty(t, ParseFeed("not xml at all", "x", "y"))
	require.Empty(t, ParseFeed("", "x", "y"))
}

func TestLoadFeedSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feeds:
  - name: Example Blog
    url: https://example.com/feed
    category: Cloud
`), 0o600))

	feeds, err := LoadFeedSources(path)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	require.Equal(t, FeedSource{Name: "Example Blog", URL: "https://example.com/feed", Category: "Cloud"}, feeds[0])
}

func TestLoadFeedSources_defaultsWhenEmptyPath(t *testing.T) {
	feeds, err := LoadFeedSources("")
	require.NoError(t, err)
	require.NotEmpty(t, feeds)
}

func TestLoadFeedSources_emptyFileIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds: []\n"), 0o600))

	_, err := LoadFeedSources(path)
	require.Error(t, err)
}

func TestDigestClient_build(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sampleRSS)
	}))
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	client := NewDigestClient([]FeedSource{
		{Name: "Good", URL: good.URL, Category: "Cloud"},
		{Name: "Bad", URL: bad.URL, Category: "General"},
	}, &http.Client{})

	digest, err := client.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, digest.SourcesOK)
	require.Equal(t, 2, digest.TotalArticles)
	require.Len(t, digest.Categories, 1)
	require.Equal(t, "Cloud", digest.Categories[0].Name)
	require.Len(t, digest.Categories[0].Items, 2)
}

func TestDigestClient_allFeedsDownIsError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	client := NewDigestClient([]FeedSource{
		{Name: "Bad", URL: bad.URL, Category: "General"},
	}, &http.Client{})

	_, err := client.Build(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

package bigcty

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	// DefaultFeedURL is the RSS feed announcing BigCTY releases.
	DefaultFeedURL = "http://www.country-files.com/category/big-cty/feed/"
	// DefaultDownloadURL is the archive URL template; %s is the YYYYMMDD datestamp.
	DefaultDownloadURL = "http://www.country-files.com/bigcty/download/bigcty-%s.zip"
	// DefaultUserAgent identifies the client to country-files.com.
	DefaultUserAgent = "bigcty-go"

	// datFileName is the member of the release archive that gets parsed.
	datFileName = "cty.dat"
	// feedDateLayout matches the date embedded in release post links,
	// e.g. ".../big-cty-15-march-2024/".
	feedDateLayout = "02-January-2006"
)

// feedDateRegex extracts the release date from a feed item link.
var feedDateRegex = regexp.MustCompile(`(\d{2}-\w+-\d{4})`)

// HTTPDoer is the subset of *http.Client used by CountryFilesSource.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SourceConfig contains configuration options for a CountryFilesSource.
type SourceConfig struct {
	FeedURL     string   // RSS feed URL (default: DefaultFeedURL)
	DownloadURL string   // Archive URL template with one %s (default: DefaultDownloadURL)
	UserAgent   string   // User-Agent header (default: DefaultUserAgent)
	Client      HTTPDoer // HTTP client (default: 30s timeout)
}

// SourceOption is a functional option for configuring a CountryFilesSource.
type SourceOption func(*SourceConfig)

// WithFeedURL sets the release feed URL.
func WithFeedURL(u string) SourceOption {
	return func(c *SourceConfig) {
		c.FeedURL = u
	}
}

// WithDownloadURL sets the archive URL template. It must contain one %s,
// which is replaced by the YYYYMMDD datestamp.
func WithDownloadURL(tmpl string) SourceOption {
	return func(c *SourceConfig) {
		c.DownloadURL = tmpl
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) SourceOption {
	return func(c *SourceConfig) {
		c.UserAgent = ua
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(d HTTPDoer) SourceOption {
	return func(c *SourceConfig) {
		c.Client = d
	}
}

func defaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		FeedURL:     DefaultFeedURL,
		DownloadURL: DefaultDownloadURL,
		UserAgent:   DefaultUserAgent,
		Client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// CountryFilesSource discovers releases through the country-files.com RSS
// feed and downloads the matching zip archive.
type CountryFilesSource struct {
	cfg *SourceConfig
}

var _ ReleaseSource = (*CountryFilesSource)(nil)

// NewCountryFilesSource creates a source for country-files.com.
func NewCountryFilesSource(opts ...SourceOption) *CountryFilesSource {
	cfg := defaultSourceConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &CountryFilesSource{cfg: cfg}
}

// rssFeed is the part of an RSS 2.0 document we need.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
		} `xml:"item"`
	} `xml:"channel"`
}

// Latest reads the feed and derives the release from its newest item.
func (s *CountryFilesSource) Latest(ctx context.Context) (Release, error) {
	body, err := s.get(ctx, s.cfg.FeedURL)
	if err != nil {
		return Release{}, err
	}

	var feed rssFeed
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.CharsetReader = charset.NewReaderLabel
	if err := dec.Decode(&feed); err != nil {
		return Release{}, fmt.Errorf("decoding feed: %w", err)
	}
	if len(feed.Channel.Items) == 0 {
		return Release{}, errors.New("feed has no items")
	}

	link := strings.TrimSpace(feed.Channel.Items[0].Link)
	m := feedDateRegex.FindStringSubmatch(link)
	if m == nil {
		return Release{}, fmt.Errorf("no release date in feed link %q", link)
	}
	date, err := time.Parse(feedDateLayout, m[1])
	if err != nil {
		return Release{}, fmt.Errorf("parsing release date %q: %w", m[1], err)
	}

	version := date.Format(versionLayout)
	return Release{
		Version: version,
		URL:     fmt.Sprintf(s.cfg.DownloadURL, version),
	}, nil
}

// Fetch downloads the release archive and returns its cty.dat member.
func (s *CountryFilesSource) Fetch(ctx context.Context, rel Release) ([]byte, error) {
	body, err := s.get(ctx, rel.URL)
	if err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("opening release archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != datFileName {
			continue
		}
		return readZipEntry(f)
	}
	return nil, fmt.Errorf("release archive has no %s", datFileName)
}

// readZipEntry reads a single file entry from a zip archive.
func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s in archive: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s in archive: %w", f.Name, err)
	}
	return data, nil
}

func (s *CountryFilesSource) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	return body, nil
}

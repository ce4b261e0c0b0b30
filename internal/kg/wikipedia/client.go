package wikipedia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	// DefaultEndpoint is the English Wikipedia action API
	DefaultEndpoint = "https://en.wikipedia.org/w/api.php"
	// DefaultUserAgent identifies this client
	DefaultUserAgent = "Historia/1.0"
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 20 * time.Second
	// DefaultRateLimit is 2 requests per second
	DefaultRateLimit = rate.Limit(2.0)
	// DefaultCacheTTL for resolved title identifiers
	DefaultCacheTTL = 24 * time.Hour
	// TitleBatchSize is the MediaWiki limit on titles per query for anonymous clients
	TitleBatchSize = 50
	// MaxRetries for transient errors
	MaxRetries = 2

	// Unresolved is the identifier reported for titles without a linked item.
	Unresolved = ""
)

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrPageNotFound    = errors.New("page not found")
)

// namespaces skipped when collecting article links from a section.
var namespaces = map[string]bool{
	"file": true, "image": true, "category": true, "help": true, "wikipedia": true,
	"template": true, "template talk": true, "portal": true, "special": true, "talk": true,
	"module": true, "draft": true, "user": true, "mediawiki": true,
}

// Client talks to the MediaWiki action API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	userAgent  string
	limiter    *rate.Limiter
	cache      *cache.Cache
	retryDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets a custom rate limit (requests per second).
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithUserAgent sets a custom User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCacheTTL sets how long resolved identifiers are kept.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.cache = cache.New(ttl, ttl*2)
		}
	}
}

// NewClient creates a MediaWiki API client.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		endpoint:   endpoint,
		userAgent:  DefaultUserAgent,
		limiter:    rate.NewLimiter(DefaultRateLimit, 1),
		cache:      cache.New(DefaultCacheTTL, DefaultCacheTTL*2),
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type apiError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

type sectionsResponse struct {
	Error *apiError `json:"error"`
	Parse struct {
		Sections []struct {
			Line  string `json:"line"`
			Index string `json:"index"`
		} `json:"sections"`
	} `json:"parse"`
}

type textResponse struct {
	Error *apiError `json:"error"`
	Parse struct {
		Text string `json:"text"`
	} `json:"parse"`
}

type pagePropsResponse struct {
	Error *apiError `json:"error"`
	Query struct {
		Normalized []titleMapping `json:"normalized"`
		Redirects  []titleMapping `json:"redirects"`
		Pages      []struct {
			Title     string `json:"title"`
			Missing   bool   `json:"missing"`
			PageProps struct {
				WikibaseItem string `json:"wikibase_item"`
			} `json:"pageprops"`
		} `json:"pages"`
	} `json:"query"`
}

type titleMapping struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FindSection returns the section index of the heading on page whose text
// equals heading, ignoring case and surrounding whitespace.
func (c *Client) FindSection(ctx context.Context, page, heading string) (string, error) {
	params := url.Values{
		"action": {"parse"},
		"page":   {page},
		"prop":   {"sections"},
	}

	var resp sectionsResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return "", fmt.Errorf("parse sections of %q: %w", page, err)
	}
	if resp.Error != nil {
		return "", apiErr(resp.Error)
	}

	want := strings.TrimSpace(heading)
	for _, s := range resp.Parse.Sections {
		if strings.EqualFold(strings.TrimSpace(stripTags(s.Line)), want) {
			return s.Index, nil
		}
	}
	return "", fmt.Errorf("%w: %q on %q", ErrSectionNotFound, heading, page)
}

// SectionLinks returns the article titles linked from one section of page,
// in document order and without duplicates.
func (c *Client) SectionLinks(ctx context.Context, page, section string) ([]string, error) {
	params := url.Values{
		"action":             {"parse"},
		"page":               {page},
		"prop":               {"text"},
		"section":            {section},
		"disableeditsection": {"1"},
	}

	var resp textResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("parse section %s of %q: %w", section, page, err)
	}
	if resp.Error != nil {
		return nil, apiErr(resp.Error)
	}

	return extractArticleLinks(resp.Parse.Text)
}

// ResolveIdentifiers maps article titles to their Wikidata item ids in
// batches of TitleBatchSize. Titles that do not resolve map to Unresolved.
func (c *Client) ResolveIdentifiers(ctx context.Context, titles []string) (map[string]string, error) {
	result := make(map[string]string, len(titles))
	pending := make([]string, 0, len(titles))
	for _, title := range titles {
		if _, seen := result[title]; seen {
			continue
		}
		if cached, ok := c.cache.Get(cacheKey(title)); ok {
			result[title] = cached.(string)
			continue
		}
		result[title] = Unresolved
		pending = append(pending, title)
	}

	for start := 0; start < len(pending); start += TitleBatchSize {
		end := min(start+TitleBatchSize, len(pending))
		batch := pending[start:end]

		resolved, err := c.resolveBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for _, title := range batch {
			if id := resolved[title]; id != Unresolved {
				result[title] = id
				c.cache.SetDefault(cacheKey(title), id)
			}
		}
	}
	return result, nil
}

func (c *Client) resolveBatch(ctx context.Context, titles []string) (map[string]string, error) {
	params := url.Values{
		"action":    {"query"},
		"prop":      {"pageprops"},
		"ppprop":    {"wikibase_item"},
		"redirects": {"1"},
		"titles":    {strings.Join(titles, "|")},
	}

	var resp pagePropsResponse
	if err := c.get(ctx, params, &resp); err != nil {
		return nil, fmt.Errorf("query pageprops: %w", err)
	}
	if resp.Error != nil {
		return nil, apiErr(resp.Error)
	}

	byFinal := make(map[string]string, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		if p.Missing || p.PageProps.WikibaseItem == "" {
			continue
		}
		byFinal[p.Title] = p.PageProps.WikibaseItem
	}

	normalized := toMap(resp.Query.Normalized)
	redirects := toMap(resp.Query.Redirects)

	out := make(map[string]string, len(titles))
	for _, title := range titles {
		final := title
		if to, ok := normalized[final]; ok {
			final = to
		}
		if to, ok := redirects[final]; ok {
			final = to
		}
		out[title] = byFinal[final]
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, params url.Values, dst any) error {
	params.Set("format", "json")
	params.Set("formatversion", "2")
	reqURL := c.endpoint + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay * time.Duration(1<<uint(attempt-1))):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error (%d)", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code %d", resp.StatusCode)
		}

		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func extractArticleLinks(html string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse section html: %w", err)
	}

	seen := make(map[string]bool)
	var titles []string
	doc.Find(`a[href^="/wiki/"]`).Each(func(_ int, a *goquery.Selection) {
		if a.ParentsFiltered("sup.reference, .mw-editsection, .navbox, .hatnote").Length() > 0 {
			return
		}
		title, ok := a.Attr("title")
		if !ok || strings.TrimSpace(title) == "" {
			href, _ := a.Attr("href")
			decoded, err := url.PathUnescape(strings.TrimPrefix(href, "/wiki/"))
			if err != nil {
				return
			}
			title = strings.ReplaceAll(decoded, "_", " ")
		}
		if i := strings.Index(title, "#"); i >= 0 {
			title = title[:i]
		}
		title = strings.TrimSpace(title)
		if title == "" || isNamespaced(title) || seen[title] {
			return
		}
		seen[title] = true
		titles = append(titles, title)
	})
	return titles, nil
}

func isNamespaced(title string) bool {
	prefix, _, found := strings.Cut(title, ":")
	if !found {
		return false
	}
	return namespaces[strings.ToLower(strings.TrimSpace(prefix))]
}

func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}

func toMap(mappings []titleMapping) map[string]string {
	m := make(map[string]string, len(mappings))
	for _, mapping := range mappings {
		m[mapping.From] = mapping.To
	}
	return m
}

func apiErr(e *apiError) error {
	if e.Code == "missingtitle" {
		return fmt.Errorf("%w: %s", ErrPageNotFound, e.Info)
	}
	return fmt.Errorf("mediawiki error %s: %s", e.Code, e.Info)
}

func cacheKey(title string) string {
	return "qid:" + title
}

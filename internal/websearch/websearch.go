package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/raglab/ragindex-mcp/pkg/types"
)

// Result is one ranked web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher is the web search collaborator contract.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

const (
	defaultEndpoint = "https://html.duckduckgo.com/html/"
	defaultTimeout  = 10 * time.Second

	// Outbound request budget. The HTML endpoint throttles aggressively,
	// one request per second keeps us under its limits.
	requestsPerSecond = 1
	burstSize         = 3
)

// HTTPSearcher queries the DuckDuckGo HTML endpoint and parses result
// anchors out of the response. No API key required.
type HTTPSearcher struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxResults int
}

// Option configures an HTTPSearcher.
type Option func(*HTTPSearcher)

// WithEndpoint overrides the search endpoint, mainly for tests.
func WithEndpoint(endpoint string) Option {
	return func(s *HTTPSearcher) { s.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSearcher) { s.httpClient = client }
}

// WithMaxResults caps the number of parsed results.
func WithMaxResults(n int) Option {
	return func(s *HTTPSearcher) { s.maxResults = n }
}

// NewHTTPSearcher creates a rate-limited web searcher.
func NewHTTPSearcher(opts ...Option) *HTTPSearcher {
	s := &HTTPSearcher{
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burstSize),
		maxResults: 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs one query and returns ranked results. Failures are reported as
// ErrSearchUnavailable so the orchestrator can degrade to local-only.
func (s *HTTPSearcher) Search(ctx context.Context, query string) ([]Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchUnavailable, err)
	}

	reqURL := s.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchUnavailable, err)
	}
	req.Header.Set("User-Agent", "ragindex-mcp/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", types.ErrSearchUnavailable, resp.StatusCode)
	}

	results, err := parseResults(resp.Body, s.maxResults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrSearchUnavailable, err)
	}
	return results, nil
}

// parseResults walks the result page and extracts anchors with the
// "result__a" class plus their sibling snippets.
func parseResults(body io.Reader, limit int) ([]Result, error) {
	root, err := html.Parse(body)
	if err != nil {
		return nil, err
	}

	var results []Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attr(n, "href")
			title := strings.TrimSpace(textContent(n))
			if href != "" && title != "" {
				results = append(results, Result{
					Title: title,
					URL:   resolveRedirect(href),
				})
			}
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") && len(results) > 0 {
			if results[len(results)-1].Snippet == "" {
				results[len(results)-1].Snippet = strings.TrimSpace(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return results, nil
}

// resolveRedirect unwraps the uddg redirect parameter when present.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, part := range strings.Fields(attr(n, "class")) {
		if part == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// NormalizeURL canonicalizes a URL for deduplication: lowercased scheme and
// host, no fragment, no trailing slash, tracking parameters dropped, and
// remaining query parameters sorted.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "ref" || key == "fbclid" {
			q.Del(key)
		}
	}
	if len(q) > 0 {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var parts []string
		for _, key := range keys {
			for _, v := range q[key] {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	} else {
		u.RawQuery = ""
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

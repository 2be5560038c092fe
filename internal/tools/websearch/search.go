// Package websearch provides the web_search tool. It is backed by the
// Brave Search API when BRAVE_SEARCH_API_KEY is available, falling back
// to SerpAPI; the permission resolver gates the suite on one of the two
// secrets existing.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const (
	braveBaseURL   = "https://api.search.brave.com/res/v1"
	serpapiBaseURL = "https://serpapi.com"

	// SecretBrave and SecretSerpAPI are the credential names the suite
	// is gated on.
	SecretBrave   = "BRAVE_SEARCH_API_KEY"
	SecretSerpAPI = "SERPAPI_API_KEY"

	defaultResultCount = 5
	maxResultCount     = 20
)

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Response is the web_search tool payload.
type Response struct {
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

// backend performs one search against a specific provider.
type backend interface {
	name() string
	search(ctx context.Context, query string, count int) ([]Result, error)
}

type braveBackend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (b *braveBackend) name() string { return "brave" }

func (b *braveBackend) search(ctx context.Context, query string, count int) ([]Result, error) {
	endpoint, err := url.Parse(b.baseURL + "/web/search")
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(count))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.apiKey)

	body, err := doJSON(b.client, req, "brave")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse brave response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
	}
	return results, nil
}

type serpapiBackend struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func (b *serpapiBackend) name() string { return "serpapi" }

func (b *serpapiBackend) search(ctx context.Context, query string, count int) ([]Result, error) {
	endpoint, err := url.Parse(b.baseURL + "/search.json")
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("num", strconv.Itoa(count))
	q.Set("api_key", b.apiKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := doJSON(b.client, req, "serpapi")
	if err != nil {
		return nil, err
	}

	var parsed struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse serpapi response: %w", err)
	}

	results := make([]Result, 0, len(parsed.OrganicResults))
	for _, r := range parsed.OrganicResults {
		results = append(results, Result{Title: r.Title, URL: r.Link, Snippet: r.Snippet})
	}
	return results, nil
}

func doJSON(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, string(body))
	}
	return body, nil
}

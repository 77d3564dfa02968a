package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultSearchEngine = "duckduckgo"
	defaultTopK         = 5
	searchCacheTTL      = 5 * time.Minute
)

// Credentials resolves stored secrets by id. Search engines use the
// "search-<engine>" id convention.
type Credentials interface {
	Get(id string) (string, error)
}

// SearchResult is one hit from a web search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Engine  string `json:"engine"`
}

// SearchOutput is the tool result payload.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
}

type searchCacheEntry struct {
	output    SearchOutput
	fetchedAt time.Time
}

// WebSearch is the built-in search tool. Results are cached for five minutes
// to avoid hammering the engines with repeated identical queries.
type WebSearch struct {
	client *http.Client
	creds  Credentials
	engine string
	clock  func() time.Time

	mu    sync.Mutex
	cache map[string]searchCacheEntry
}

// NewWebSearch builds the search tool. engine selects the default backend;
// empty means duckduckgo, the only engine that needs no API key.
func NewWebSearch(client *http.Client, creds Credentials, engine string) *WebSearch {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if engine == "" {
		engine = defaultSearchEngine
	}
	return &WebSearch{
		client: client,
		creds:  creds,
		engine: engine,
		clock:  time.Now,
		cache:  make(map[string]searchCacheEntry),
	}
}

// Definition describes the tool to the model.
func (s *WebSearch) Definition() Definition {
	return Definition{
		Name:        "web_search",
		Description: "Search the web for current information. Returns a list of results with title, url and snippet.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":  map[string]any{"type": "string", "description": "The search query"},
				"topK":   map[string]any{"type": "integer", "description": "Maximum number of results", "default": defaultTopK},
				"engine": map[string]any{"type": "string", "description": "Search engine to use", "enum": []string{"duckduckgo", "tavily", "google", "bing", "brave"}},
			},
			"required": []string{"query"},
		},
	}
}

// Handler adapts the tool to the registry signature.
func (s *WebSearch) Handler(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Query  string `json:"query"`
		Engine string `json:"engine"`
		TopK   int    `json:"topK"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("invalid search arguments: %w", err)
	}
	if strings.TrimSpace(input.Query) == "" {
		return "", fmt.Errorf("search query must not be empty")
	}

	out, err := s.Search(ctx, input.Query, input.Engine, input.TopK)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("marshal search output: %w", err)
	}
	return string(data), nil
}

// Search runs one query through the selected engine, serving cached output
// when the same query was run within the last five minutes.
func (s *WebSearch) Search(ctx context.Context, query, engine string, topK int) (SearchOutput, error) {
	if engine == "" {
		engine = s.engine
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	cacheKey := fmt.Sprintf("%s::%d::%s", engine, topK, strings.ToLower(strings.TrimSpace(query)))

	s.mu.Lock()
	if cached, ok := s.cache[cacheKey]; ok && s.clock().Sub(cached.fetchedAt) < searchCacheTTL {
		s.mu.Unlock()
		return cached.output, nil
	}
	s.mu.Unlock()

	var results []SearchResult
	var err error
	switch engine {
	case "tavily":
		results, err = s.searchTavily(ctx, query, topK)
	case "google":
		results, err = s.searchGoogle(ctx, query, topK)
	case "bing":
		results, err = s.searchBing(ctx, query, topK)
	case "brave":
		results, err = s.searchBrave(ctx, query, topK)
	default:
		results, err = s.searchDuckDuckGo(ctx, query, topK)
	}
	if err != nil {
		return SearchOutput{}, err
	}

	output := SearchOutput{Results: results}
	s.mu.Lock()
	now := s.clock()
	for key, cached := range s.cache {
		if now.Sub(cached.fetchedAt) >= searchCacheTTL {
			delete(s.cache, key)
		}
	}
	s.cache[cacheKey] = searchCacheEntry{output: output, fetchedAt: now}
	s.mu.Unlock()

	return output, nil
}

func (s *WebSearch) apiKey(engine string) (string, error) {
	if s.creds == nil {
		return "", fmt.Errorf("no credential store configured for %s", engine)
	}
	key, err := s.creds.Get("search-" + engine)
	if err != nil || strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("API key not configured for %s", engine)
	}
	return key, nil
}

func (s *WebSearch) getJSON(ctx context.Context, req *http.Request) (map[string]any, error) {
	resp, err := s.client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s", req.URL.Host, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", req.URL.Host, err)
	}
	return parsed, nil
}

func (s *WebSearch) searchTavily(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	key, err := s.apiKey("tavily")
	if err != nil {
		return nil, err
	}
	payload, _ := json.Marshal(map[string]any{"query": query, "max_results": topK})
	req, err := http.NewRequest(http.MethodPost, "https://api.tavily.com/search", strings.NewReader(string(payload)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	parsed, err := s.getJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectResults(parsed["results"], topK, "tavily", "title", "url", "content"), nil
}

func (s *WebSearch) searchGoogle(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	key, err := s.apiKey("google")
	if err != nil {
		return nil, err
	}
	cx, err := s.creds.Get("search-google-cx")
	if err != nil || cx == "" {
		return nil, fmt.Errorf("Google Custom Search Engine ID (cx) not configured")
	}

	u := fmt.Sprintf("https://www.googleapis.com/customsearch/v1?key=%s&cx=%s&num=%d&q=%s",
		url.QueryEscape(key), url.QueryEscape(cx), topK, url.QueryEscape(query))
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	parsed, err := s.getJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	return collectResults(parsed["items"], topK, "google", "title", "link", "snippet"), nil
}

func (s *WebSearch) searchBing(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	key, err := s.apiKey("bing")
	if err != nil {
		return nil, err
	}
	u := "https://api.bing.microsoft.com/v7.0/search?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(topK)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", key)

	parsed, err := s.getJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	var items any
	if web, ok := parsed["webPages"].(map[string]any); ok {
		items = web["value"]
	}
	return collectResults(items, topK, "bing", "name", "url", "snippet"), nil
}

func (s *WebSearch) searchBrave(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	key, err := s.apiKey("brave")
	if err != nil {
		return nil, err
	}
	u := "https://api.search.brave.com/res/v1/web/search?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(topK)
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", key)

	parsed, err := s.getJSON(ctx, req)
	if err != nil {
		return nil, err
	}
	var items any
	if web, ok := parsed["web"].(map[string]any); ok {
		items = web["results"]
	}
	return collectResults(items, topK, "brave", "title", "url", "description"), nil
}

func (s *WebSearch) searchDuckDuckGo(ctx context.Context, query string, topK int) ([]SearchResult, error) {
	u := "https://api.duckduckgo.com/?q=" + url.QueryEscape(query) + "&format=json&no_redirect=1&no_html=1"
	req, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	parsed, err := s.getJSON(ctx, req)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	if abstract, _ := parsed["AbstractText"].(string); abstract != "" {
		title, _ := parsed["Heading"].(string)
		if title == "" {
			title = "DuckDuckGo Answer"
		}
		abstractURL, _ := parsed["AbstractURL"].(string)
		results = append(results, SearchResult{Title: title, URL: abstractURL, Snippet: abstract, Engine: "duckduckgo"})
	}
	if len(results) == 0 {
		if topics, ok := parsed["RelatedTopics"].([]any); ok {
			for _, topic := range topics {
				if len(results) >= topK {
					break
				}
				tm, ok := topic.(map[string]any)
				if !ok {
					continue
				}
				topicURL, _ := tm["FirstURL"].(string)
				if topicURL == "" {
					continue
				}
				title, _ := tm["Text"].(string)
				results = append(results, SearchResult{Title: title, URL: topicURL, Engine: "duckduckgo"})
			}
		}
	}
	if len(results) == 0 {
		results = append(results, SearchResult{
			Title:   "No instant answers available",
			URL:     "https://duckduckgo.com/?q=" + url.QueryEscape(query),
			Snippet: "DuckDuckGo's instant answer API found no results for this query. Try a more specific search or a different engine.",
			Engine:  "duckduckgo",
		})
	}
	return results, nil
}

// collectResults pulls up to topK items out of a loosely typed result array,
// mapping the engine's field names onto the common shape.
func collectResults(items any, topK int, engine, titleKey, urlKey, snippetKey string) []SearchResult {
	array, ok := items.([]any)
	if !ok {
		return nil
	}
	var results []SearchResult
	for _, item := range array {
		if len(results) >= topK {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m[titleKey].(string)
		resultURL, _ := m[urlKey].(string)
		snippet, _ := m[snippetKey].(string)
		results = append(results, SearchResult{Title: title, URL: resultURL, Snippet: snippet, Engine: engine})
	}
	return results
}

package assist

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"livescribe/internal/domain"
)

// SearchConfig controls the web search client.
type SearchConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// SearchClient implements ports.WebSearch against a simple search API.
type SearchClient struct {
	cfg        SearchConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSearchClient(cfg SearchConfig, logger *zap.Logger) *SearchClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// Search returns up to limit citations for a query. Results without a URL
// are dropped.
func (s *SearchClient) Search(ctx context.Context, query string, limit int) ([]domain.Citation, error) {
	if limit <= 0 {
		limit = 5
	}

	endpoint, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/search")
	if err != nil {
		return nil, fmt.Errorf("invalid search base URL: %w", err)
	}
	values := endpoint.Query()
	values.Set("q", query)
	values.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("web search http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("web search response malformed: %w", err)
	}

	citations := make([]domain.Citation, 0, len(response.Results))
	for _, result := range response.Results {
		if strings.TrimSpace(result.URL) == "" {
			continue
		}
		citations = append(citations, domain.Citation{Title: result.Title, URL: result.URL, Snippet: result.Snippet})
		if len(citations) == limit {
			break
		}
	}
	return citations, nil
}

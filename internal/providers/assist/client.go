// Package assist implements the enrichment backends: live correction,
// contextual cues, deep answers and post-session document correction, all
// served by one REST API. Responses are validated at this boundary before
// they are trusted as typed data.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"livescribe/internal/authcache"
	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

// ErrEmptyResult marks a well-formed response with no usable content.
// Callers treat it as "nothing produced", not as a session error.
var ErrEmptyResult = ports.ErrEmptyResult

// Config controls the assist REST client.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	TokenTTL time.Duration
}

// Client implements ports.CorrectionService, ports.CuesService,
// ports.DeepAnswerService and ports.DocumentCorrector.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *authcache.Cache
	search     ports.WebSearch
	logger     *zap.Logger
}

func NewClient(cfg Config, search ports.WebSearch, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     authcache.New(cfg.TokenTTL),
		search:     search,
		logger:     logger,
	}
}

// Correct rewrites a batch of segment texts. Items the backend returns with
// a missing id or empty text are dropped.
func (c *Client) Correct(ctx context.Context, batch []ports.CorrectionItem, languageHint string, phraseHints []string) ([]domain.Correction, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	request := struct {
		Items       []ports.CorrectionItem `json:"items"`
		Language    string                 `json:"language,omitempty"`
		PhraseHints []string               `json:"phraseHints,omitempty"`
	}{Items: batch, Language: languageHint, PhraseHints: phraseHints}

	type correctedItem struct {
		ID            *int64 `json:"id"`
		CorrectedText string `json:"correctedText"`
	}
	var response struct {
		Items []correctedItem `json:"items"`
	}
	if err := c.postJSON(ctx, "/v1/corrections", request, &response); err != nil {
		return nil, err
	}

	valid := lo.Filter(response.Items, func(item correctedItem, _ int) bool {
		return item.ID != nil && strings.TrimSpace(item.CorrectedText) != ""
	})
	return lo.Map(valid, func(item correctedItem, _ int) domain.Correction {
		return domain.Correction{SegmentID: *item.ID, CorrectedText: strings.TrimSpace(item.CorrectedText)}
	}), nil
}

// Detect asks for glossary/bio/question cards over recent speech. Cards with
// an unknown type or no content are dropped.
func (c *Client) Detect(ctx context.Context, recentTexts []string, languageHint string) ([]domain.Cue, error) {
	request := struct {
		Texts    []string `json:"texts"`
		Language string   `json:"language,omitempty"`
	}{Texts: recentTexts, Language: languageHint}

	var response struct {
		Cues []struct {
			Type  string `json:"type"`
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"cues"`
	}
	if err := c.postJSON(ctx, "/v1/cues", request, &response); err != nil {
		return nil, err
	}

	cues := make([]domain.Cue, 0, len(response.Cues))
	for _, raw := range response.Cues {
		cueType := domain.CueType(raw.Type)
		switch cueType {
		case domain.CueTypeDefinition, domain.CueTypeBio, domain.CueTypeQuestion:
		default:
			c.logger.Debug("dropping cue with unknown type", zap.String("type", raw.Type))
			continue
		}
		if strings.TrimSpace(raw.Title) == "" && strings.TrimSpace(raw.Body) == "" {
			continue
		}
		cues = append(cues, domain.Cue{Type: cueType, Title: raw.Title, Body: raw.Body})
	}
	return cues, nil
}

// Answer produces a web-search-backed answer. Search failure degrades to
// backend-knowledge-only rather than failing the question.
func (c *Client) Answer(ctx context.Context, question string, recentTexts []string, languageHint string, mode string) (domain.DeepAnswer, error) {
	var sources []domain.Citation
	if c.search != nil {
		found, err := c.search.Search(ctx, question, 5)
		if err != nil {
			c.logger.Warn("web search unavailable, answering from model knowledge", zap.Error(err))
		} else {
			sources = found
		}
	}

	request := struct {
		Question string            `json:"question"`
		Context  []string          `json:"context,omitempty"`
		Language string            `json:"language,omitempty"`
		Mode     string            `json:"mode,omitempty"`
		Sources  []domain.Citation `json:"sources,omitempty"`
	}{Question: question, Context: recentTexts, Language: languageHint, Mode: mode, Sources: sources}

	var response struct {
		Answer    string `json:"answer"`
		Citations []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"citations"`
	}
	if err := c.postJSON(ctx, "/v1/answers", request, &response); err != nil {
		return domain.DeepAnswer{}, err
	}
	if strings.TrimSpace(response.Answer) == "" {
		return domain.DeepAnswer{}, ErrEmptyResult
	}

	answer := domain.DeepAnswer{Question: question, AnswerText: response.Answer}
	for _, raw := range response.Citations {
		if strings.TrimSpace(raw.URL) == "" {
			continue
		}
		answer.Citations = append(answer.Citations, domain.Citation{Title: raw.Title, URL: raw.URL, Snippet: raw.Snippet})
	}
	return answer, nil
}

// CorrectDocument corrects a full transcript after the session ends.
func (c *Client) CorrectDocument(ctx context.Context, fullText string, languageHint string) (string, error) {
	request := struct {
		Text     string `json:"text"`
		Language string `json:"language,omitempty"`
	}{Text: fullText, Language: languageHint}

	var response struct {
		CorrectedText string `json:"correctedText"`
	}
	if err := c.postJSON(ctx, "/v1/documents/corrections", request, &response); err != nil {
		return "", err
	}
	if strings.TrimSpace(response.CorrectedText) == "" {
		return "", ErrEmptyResult
	}
	return response.CorrectedText, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if entry, ok := c.tokens.Get(); ok {
		return entry.Token, nil
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", errors.New("assist API key is not configured")
	}

	body, err := json.Marshal(struct {
		APIKey string `json:"apiKey"`
	}{APIKey: c.cfg.APIKey})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/tokens", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("assist token exchange failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("assist token exchange http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var tokenResp struct {
		Token  string `json:"token"`
		Region string `json:"region"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("assist token response malformed: %w", err)
	}
	if tokenResp.Token == "" {
		return "", errors.New("assist token response missing token")
	}

	c.tokens.Set(authcache.Entry{Token: tokenResp.Token, Region: tokenResp.Region})
	return tokenResp.Token, nil
}

func (c *Client) postJSON(ctx context.Context, path string, request any, response any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(request)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assist call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Invalidate()
	}
	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("assist call %s http %d: %s", path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("assist call %s response malformed: %w", path, err)
	}
	return nil
}

package assist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"livescribe/internal/domain"
	"livescribe/internal/ports"
)

func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "session-token", "region": "eu"})
	})
	for path, handler := range handlers {
		mux.HandleFunc(path, handler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientCorrectValidatesItems(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/corrections": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
				t.Errorf("unexpected auth header: %q", got)
			}
			_, _ = w.Write([]byte(`{"items":[
				{"id":1,"correctedText":"Hello."},
				{"correctedText":"orphan"},
				{"id":3,"correctedText":"  "},
				{"id":4,"correctedText":"World."}
			]}`))
		},
	})

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, nil, nil)
	corrections, err := client.Correct(context.Background(),
		[]ports.CorrectionItem{{ID: 1, Text: "hello"}, {ID: 4, Text: "world"}}, "en", []string{"hint"})
	if err != nil {
		t.Fatalf("correct failed: %v", err)
	}

	if len(corrections) != 2 {
		t.Fatalf("expected malformed items dropped, got %d corrections", len(corrections))
	}
	if corrections[0].SegmentID != 1 || corrections[0].CorrectedText != "Hello." {
		t.Fatalf("unexpected first correction: %+v", corrections[0])
	}
	if corrections[1].SegmentID != 4 {
		t.Fatalf("unexpected second correction: %+v", corrections[1])
	}
}

func TestClientCorrectEmptyBatchSkipsNetwork(t *testing.T) {
	t.Parallel()

	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", APIKey: "k"}, nil, nil)
	corrections, err := client.Correct(context.Background(), nil, "en", nil)
	if err != nil || corrections != nil {
		t.Fatalf("expected nil result without network call, got %v %v", corrections, err)
	}
}

func TestClientDetectDropsUnknownCueTypes(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/cues": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"cues":[
				{"type":"definition","title":"TCP","body":"A transport protocol"},
				{"type":"meme","title":"nope","body":"x"},
				{"type":"bio","title":"","body":""},
				{"type":"question","title":"Q","body":"A"}
			]}`))
		},
	})

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, nil, nil)
	cues, err := client.Detect(context.Background(), []string{"tcp handshake"}, "en")
	if err != nil {
		t.Fatalf("detect failed: %v", err)
	}
	if len(cues) != 2 {
		t.Fatalf("expected invalid cues dropped, got %d", len(cues))
	}
	if cues[0].Type != domain.CueTypeDefinition || cues[1].Type != domain.CueTypeQuestion {
		t.Fatalf("unexpected cue types: %+v", cues)
	}
}

func TestClientAnswerUsesSearchSources(t *testing.T) {
	t.Parallel()

	var sawSources atomic.Bool
	server := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/answers": func(w http.ResponseWriter, r *http.Request) {
			var request struct {
				Question string            `json:"question"`
				Sources  []domain.Citation `json:"sources"`
			}
			_ = json.NewDecoder(r.Body).Decode(&request)
			sawSources.Store(len(request.Sources) == 1)
			_, _ = w.Write([]byte(`{"answer":"TCP is connection-oriented.","citations":[
				{"title":"RFC 793","url":"https://example.org/rfc793","snippet":"..."},
				{"title":"no url"}
			]}`))
		},
	})

	search := &fakeSearch{citations: []domain.Citation{{Title: "RFC 793", URL: "https://example.org/rfc793"}}}
	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, search, nil)

	answer, err := client.Answer(context.Background(), "What is TCP?", []string{"context"}, "en", "deep")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !sawSources.Load() {
		t.Fatalf("expected search sources forwarded to backend")
	}
	if answer.Question != "What is TCP?" || answer.AnswerText == "" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if len(answer.Citations) != 1 {
		t.Fatalf("expected citation without url dropped, got %d", len(answer.Citations))
	}
}

func TestClientAnswerDegradesOnSearchFailure(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/answers": func(w http.ResponseWriter, r *http.Request) {
			var request struct {
				Sources []domain.Citation `json:"sources"`
			}
			_ = json.NewDecoder(r.Body).Decode(&request)
			if len(request.Sources) != 0 {
				t.Errorf("expected no sources after search failure")
			}
			_, _ = w.Write([]byte(`{"answer":"from model knowledge"}`))
		},
	})

	search := &fakeSearch{err: errors.New("search down")}
	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, search, nil)

	answer, err := client.Answer(context.Background(), "q?", nil, "en", "deep")
	if err != nil {
		t.Fatalf("expected degraded answer, got error: %v", err)
	}
	if answer.AnswerText != "from model knowledge" {
		t.Fatalf("unexpected answer: %+v", answer)
	}
}

func TestClientAnswerEmptyIsErrEmptyResult(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/answers": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"answer":"  "}`))
		},
	})

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, nil, nil)
	_, err := client.Answer(context.Background(), "q?", nil, "en", "deep")
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestClientCorrectDocument(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, map[string]http.HandlerFunc{
		"/v1/documents/corrections": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"correctedText":"Hello world."}`))
		},
	})

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, nil, nil)
	corrected, err := client.CorrectDocument(context.Background(), "hello world", "en")
	if err != nil {
		t.Fatalf("correct document failed: %v", err)
	}
	if corrected != "Hello world." {
		t.Fatalf("unexpected corrected text: %q", corrected)
	}
}

func TestClientTokenIsCachedAcrossCalls(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t"})
	})
	mux.HandleFunc("/v1/cues", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"cues":[]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, nil, nil)
	for i := 0; i < 3; i++ {
		if _, err := client.Detect(context.Background(), nil, "en"); err != nil {
			t.Fatalf("detect failed: %v", err)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("expected one token exchange, got %d", tokenCalls.Load())
	}
}

func TestClientUnauthorizedInvalidatesToken(t *testing.T) {
	t.Parallel()

	var tokenCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tokens", func(w http.ResponseWriter, _ *http.Request) {
		tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "t"})
	})
	var cueCalls atomic.Int32
	mux.HandleFunc("/v1/cues", func(w http.ResponseWriter, _ *http.Request) {
		if cueCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"cues":[]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Config{BaseURL: server.URL, APIKey: "k"}, nil, nil)
	if _, err := client.Detect(context.Background(), nil, "en"); err == nil {
		t.Fatalf("expected unauthorized error")
	}
	if _, err := client.Detect(context.Background(), nil, "en"); err != nil {
		t.Fatalf("expected retry with fresh token to succeed: %v", err)
	}
	if tokenCalls.Load() != 2 {
		t.Fatalf("expected token re-exchange after 401, got %d", tokenCalls.Load())
	}
}

func TestSearchClientParsesResults(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "tcp" {
			t.Errorf("unexpected query: %q", r.URL.Query().Get("q"))
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"A","url":"https://a.example","snippet":"s"},
			{"title":"no url"},
			{"title":"B","url":"https://b.example"}
		]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	search := NewSearchClient(SearchConfig{BaseURL: server.URL}, nil)
	citations, err := search.Search(context.Background(), "tcp", 5)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(citations))
	}
}

type fakeSearch struct {
	citations []domain.Citation
	err       error
}

func (f *fakeSearch) Search(context.Context, string, int) ([]domain.Citation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.citations, nil
}

package kb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultHTTPClientConfig()
	cfg.Endpoint = srv.URL
	cfg.KnowledgeBaseID = "kb-1"
	cfg.AuthKey = "key-1"

	c, err := NewHTTPClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	return c
}

func TestQueryParsesAndSortsAnswers(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/knowledgebases/kb-1/generateAnswer" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "EndpointKey key-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req generateAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Top != 3 {
			t.Errorf("expected top=3, got %d", req.Top)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answers": []map[string]any{
				{"answer": "second", "score": 0.3},
				{"answer": "first", "score": 0.7},
			},
		})
	})

	answers, err := c.Query(context.Background(), "printer broken")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("expected 2 answers, got %d", len(answers))
	}
	if answers[0].Text != "first" || answers[1].Text != "second" {
		t.Errorf("answers not sorted descending: %+v", answers)
	}
}

func TestQueryEmptyAnswersIsError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"answers": []any{}})
	})

	if _, err := c.Query(context.Background(), "q"); err == nil {
		t.Fatal("expected error for empty answers array")
	}
}

func TestQueryServerErrorIsError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := c.Query(context.Background(), "q"); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestQueryMalformedBodyIsError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	if _, err := c.Query(context.Background(), "q"); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

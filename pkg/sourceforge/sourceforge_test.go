package sourceforge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(context.Background(), Config{BaseURL: srv.URL, Token: "test-token"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client, srv
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(context.Background(), Config{Token: "t"}); err == nil {
		t.Fatal("expected an error when BaseURL is empty")
	}
}

func TestNew_RequiresTokenOrClientCredentials(t *testing.T) {
	if _, err := New(context.Background(), Config{BaseURL: "http://example.invalid"}); err == nil {
		t.Fatal("expected an error when neither Token nor client credentials are set")
	}
}

func TestListPullRequests_DecodesResponse(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("expected bearer token auth header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode([]PullRequest{{Number: 42, Title: "fix ci", HeadSHA: "abc123"}})
	})

	prs, err := client.ListPullRequests(context.Background(), "org/repo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prs) != 1 || prs[0].Number != 42 {
		t.Fatalf("unexpected pull requests: %+v", prs)
	}
}

func TestListCheckRuns_DecodesResponse(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]CheckRun{{ID: 7, Name: "build", Conclusion: "failure"}})
	})

	runs, err := client.ListCheckRuns(context.Background(), "org/repo", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runs) != 1 || runs[0].Conclusion != "failure" {
		t.Fatalf("unexpected check runs: %+v", runs)
	}
}

func TestDownloadJobLog_ReturnsRawBody(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("compilation failed: undefined: Foo"))
	})

	log, err := client.DownloadJobLog(context.Background(), "org/repo", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log != "compilation failed: undefined: Foo" {
		t.Fatalf("unexpected log body: %q", log)
	}
}

func TestFetchChangeSet_ReturnsRawDiff(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("--- a/main.go\n+++ b/main.go\n"))
	})

	diff, err := client.FetchChangeSet(context.Background(), "org/repo", 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff == "" {
		t.Fatal("expected a non-empty diff")
	}
}

func TestPostComment_SendsBody(t *testing.T) {
	var received map[string]string
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	})

	if err := client.PostComment(context.Background(), "org/repo", 42, "patch applied"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received["body"] != "patch applied" {
		t.Fatalf("expected comment body to be sent, got %+v", received)
	}
}

func TestAppendJobSummary_NonSuccessStatusIsError(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	if err := client.AppendJobSummary(context.Background(), "org/repo", 7, "summary"); err == nil {
		t.Fatal("expected an error on a non-2xx response")
	}
}

package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codecat/internal/scan/adapters"
	"codecat/internal/scan/model"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Options{BaseURL: srv.URL, Token: "tk"})
	return NewAdapter(c)
}

func TestAdapter_Platform(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {})
	if a.Platform() != model.PlatformGitLab {
		t.Errorf("Platform() = %q, want %q", a.Platform(), model.PlatformGitLab)
	}
}

func TestEnumerateStubs_SkipsForksAndAppliesCutoff(t *testing.T) {
	old := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`[]`))
			return
		}
		fmt.Fprintf(w, `[
			{"id":1,"name":"forked","forked_from_project":{},"visibility":"public","path_with_namespace":"acme/forked","last_activity_at":%q,"created_at":%q},
			{"id":2,"name":"stale","visibility":"private","path_with_namespace":"acme/stale","last_activity_at":%q,"created_at":%q},
			{"id":3,"name":"widget","visibility":"public","path_with_namespace":"acme/widget","last_activity_at":%q,"created_at":%q}
		]`, old.Format(time.RFC3339), old.Format(time.RFC3339),
			old.Format(time.RFC3339), old.Format(time.RFC3339),
			recent.Format(time.RFC3339), recent.Format(time.RFC3339))
	}
	a := newTestAdapter(t, handler)
	ch, _, err := a.EnumerateStubs(context.Background(), "acme", adapters.Filters{
		PrivateCutoff: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("EnumerateStubs() error = %v", err)
	}
	var got []adapters.RepoStub
	for s := range ch {
		got = append(got, s)
	}
	if len(got) != 1 || got[0].Name != "widget" {
		t.Fatalf("stubs = %+v, want only widget", got)
	}
}

func TestFetchCurrentCommit_EmptyRepoOnNotFound(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	sha, _, isEmpty, err := a.FetchCurrentCommit(context.Background(), adapters.RepoStub{Owner: "1", Name: "widget"})
	if err != nil {
		t.Fatalf("FetchCurrentCommit() error = %v", err)
	}
	if !isEmpty || sha != "" {
		t.Errorf("FetchCurrentCommit() = (%q, isEmpty=%v), want empty signal", sha, isEmpty)
	}
}

func TestFetchCurrentCommit_ReturnsSHA(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `[{"id":"abc","committed_date":"2022-05-01T00:00:00Z"}]`)
	})
	sha, _, isEmpty, err := a.FetchCurrentCommit(context.Background(), adapters.RepoStub{Owner: "1", Name: "widget", DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("FetchCurrentCommit() error = %v", err)
	}
	if isEmpty || sha != "abc" {
		t.Errorf("FetchCurrentCommit() = (%q, isEmpty=%v)", sha, isEmpty)
	}
}

func TestFetchMetadata_MapsFields(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/languages"):
			w.Write([]byte(`{"Go":90.5}`))
		case strings.Contains(r.URL.Path, "/tags"):
			w.Write([]byte(`[{"name":"v1.0"}]`))
		}
	})
	stub := adapters.RepoStub{Owner: "1", Name: "widget", Organization: "acme/widget"}
	r, err := a.FetchMetadata(context.Background(), stub)
	if err != nil {
		t.Fatalf("FetchMetadata() error = %v", err)
	}
	if r.Name != "widget" || len(r.Languages) != 1 || len(r.Tags) != 1 {
		t.Errorf("FetchMetadata() = %+v", r)
	}
}

func TestFetchReadme_UsesRawFileEndpoint(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "README.md") {
			w.Write([]byte("# Widget\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	text, url, isEmpty, err := a.FetchReadme(context.Background(), adapters.RepoStub{Owner: "1", Name: "widget", Organization: "acme/widget"})
	if err != nil {
		t.Fatalf("FetchReadme() error = %v", err)
	}
	if isEmpty || text != "# Widget\n" || url == "" {
		t.Errorf("FetchReadme() = (%q, %q, %v)", text, url, isEmpty)
	}
}

func TestFetchCodeowners_TriesCandidatePaths(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, ".gitlab%2FCODEOWNERS") || strings.Contains(r.URL.Path, ".gitlab/CODEOWNERS") {
			w.Write([]byte("* @acme/team\n"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	text, isEmpty, err := a.FetchCodeowners(context.Background(), adapters.RepoStub{Owner: "1", Name: "widget"})
	if err != nil {
		t.Fatalf("FetchCodeowners() error = %v", err)
	}
	if isEmpty || text != "* @acme/team\n" {
		t.Errorf("FetchCodeowners() = (%q, %v)", text, isEmpty)
	}
}

func TestFetchCommitHistory_MapsAuthorFields(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(`[{"id":"a","author_name":"Jo","author_email":"jo@x.gov","authored_date":"2022-01-01T00:00:00Z"}]`))
	})
	entries, err := a.FetchCommitHistory(context.Background(), adapters.RepoStub{Owner: "1", Name: "widget"}, "main", 5)
	if err != nil {
		t.Fatalf("FetchCommitHistory() error = %v", err)
	}
	if len(entries) != 1 || entries[0].AuthorName != "Jo" {
		t.Errorf("FetchCommitHistory() = %+v", entries)
	}
}

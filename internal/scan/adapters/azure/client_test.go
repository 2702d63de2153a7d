package azure

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{OrgURL: srv.URL, PAT: "secret-pat"})
}

func TestDo_UsesBasicAuthForPAT(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"value":[]}`))
	})
	if _, err := c.ListRepositories(context.Background(), "proj"); err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(":secret-pat"))
	if gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestDo_AppendsAPIVersionQueryParam(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"value":[]}`))
	})
	c.ListRepositories(context.Background(), "proj")
	if !strings.Contains(gotQuery, "api-version="+apiVersion) {
		t.Errorf("query = %q, want api-version param", gotQuery)
	}
}

func TestListRepositories_DecodesValue(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[{"id":"r1","name":"widget"}]}`))
	})
	repos, err := c.ListRepositories(context.Background(), "proj")
	if err != nil {
		t.Fatalf("ListRepositories() error = %v", err)
	}
	if len(repos) != 1 || repos[0].Name != "widget" {
		t.Errorf("repos = %+v", repos)
	}
}

func TestIsNotFound_MatchesTF401019InBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"TF401019: the item does not exist"}`))
	})
	_, err := c.ListRepositories(context.Background(), "proj")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(err) = false, want true for TF401019 body")
	}
}

func TestIsNotFound_PlainStatusCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.ListRepositories(context.Background(), "proj")
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(err) = false, want true for 404 status")
	}
}

func TestIsNotFound_UnrelatedErrorIsFalse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"something else broke"}`))
	})
	_, err := c.ListRepositories(context.Background(), "proj")
	if IsNotFound(err) {
		t.Errorf("IsNotFound(err) = true, want false")
	}
}

func TestLatestCommit_EmptyRepoErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"value":[]}`))
	})
	_, err := c.LatestCommit(context.Background(), "proj", "r1", "main")
	if err == nil {
		t.Fatal("expected error for zero commits")
	}
}

func TestCommitHistory_StopsAtCapAcrossSkipPages(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Write([]byte(`{"value":[{"commitId":"a"},{"commitId":"b"}]}`))
			return
		}
		w.Write([]byte(`{"value":[]}`))
	})
	commits, err := c.CommitHistory(context.Background(), "proj", "r1", "main", 2)
	if err != nil {
		t.Fatalf("CommitHistory() error = %v", err)
	}
	if len(commits) != 2 {
		t.Errorf("commits = %d, want 2", len(commits))
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cap satisfied by first page)", calls)
	}
}

func TestItem_ReturnsRawBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("file content"))
	})
	body, err := c.Item(context.Background(), "proj", "r1", "README.md", "main")
	if err != nil {
		t.Fatalf("Item() error = %v", err)
	}
	if string(body) != "file content" {
		t.Errorf("body = %q", body)
	}
}

func TestLastRateLimit_FallsBackToPlaceholder(t *testing.T) {
	c := NewClient(Options{OrgURL: "https://dev.azure.com/org", PAT: "x"})
	got := c.LastRateLimit()
	if got == nil {
		t.Fatal("LastRateLimit() = nil, want placeholder status")
	}
}

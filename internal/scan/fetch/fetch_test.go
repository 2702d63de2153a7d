package fetch

import (
	"errors"
	"testing"
	"time"
)

var (
	errForbidden = errors.New("forbidden")
	errNotFound  = errors.New("not found")
	errEmpty     = errors.New("empty repo")
	errAPI       = errors.New("api error")
	errWeird     = errors.New("weird")
)

func testExceptions() ExceptionMap {
	return ExceptionMap{
		IsForbidden: func(err error) bool { return errors.Is(err, errForbidden) },
		IsNotFound:  func(err error) bool { return errors.Is(err, errNotFound) },
		IsEmptyRepo: func(err error) bool { return errors.Is(err, errEmpty) },
		IsAPIError:  func(err error) bool { return errors.Is(err, errAPI) },
	}
}

func noSleep(time.Duration) {}

func TestFetch_FirstCandidateSucceeds(t *testing.T) {
	got := Fetch(func(path string) (string, error) {
		return "content:" + path, nil
	}, Options{Candidates: []string{"README.md"}, Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindOK || got.Content != "content:README.md" || got.Path != "README.md" {
		t.Errorf("Fetch() = %+v", got)
	}
}

func TestFetch_NotFoundTriesNextCandidate(t *testing.T) {
	calls := []string{}
	got := Fetch(func(path string) (string, error) {
		calls = append(calls, path)
		if path == "README.md" {
			return "", errNotFound
		}
		return "fallback", nil
	}, Options{Candidates: []string{"README.md", "README.rst"}, Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindOK || got.Path != "README.rst" {
		t.Errorf("Fetch() = %+v", got)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want 2 candidates tried", calls)
	}
}

func TestFetch_AllCandidatesNotFound(t *testing.T) {
	got := Fetch(func(string) (string, error) {
		return "", errNotFound
	}, Options{Candidates: []string{"a", "b"}, Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindNotFound {
		t.Errorf("Kind = %v, want KindNotFound", got.Kind)
	}
}

func TestFetch_ForbiddenRetriesThenAbandons(t *testing.T) {
	calls := 0
	var slept []time.Duration
	got := Fetch(func(string) (string, error) {
		calls++
		return "", errForbidden
	}, Options{
		Candidates: []string{"README.md"}, Exceptions: testExceptions(),
		MaxQuickRetries: 2, QuickRetryDelay: time.Second,
		Sleep: func(d time.Duration) { slept = append(slept, d) },
	}, "test")

	if got.Kind != KindForbidden {
		t.Errorf("Kind = %v, want KindForbidden", got.Kind)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
	if len(slept) != 2 {
		t.Errorf("slept %d times, want 2", len(slept))
	}
}

func TestFetch_ForbiddenThenSucceedsOnRetry(t *testing.T) {
	calls := 0
	got := Fetch(func(string) (string, error) {
		calls++
		if calls == 1 {
			return "", errForbidden
		}
		return "ok", nil
	}, Options{
		Candidates: []string{"README.md"}, Exceptions: testExceptions(),
		MaxQuickRetries: 2, Sleep: noSleep,
	}, "test")

	if got.Kind != KindOK || got.Content != "ok" {
		t.Errorf("Fetch() = %+v", got)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFetch_EmptyRepoStopsImmediately(t *testing.T) {
	calls := 0
	got := Fetch(func(string) (string, error) {
		calls++
		return "", errEmpty
	}, Options{Candidates: []string{"a", "b"}, Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindEmptyRepo {
		t.Errorf("Kind = %v, want KindEmptyRepo", got.Kind)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (should not try second candidate)", calls)
	}
}

func TestFetch_APIErrorStopsImmediately(t *testing.T) {
	got := Fetch(func(string) (string, error) {
		return "", errAPI
	}, Options{Candidates: []string{"a", "b"}, Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindAPIError {
		t.Errorf("Kind = %v, want KindAPIError", got.Kind)
	}
}

func TestFetch_UnclassifiedErrorIsUnexpected(t *testing.T) {
	got := Fetch(func(string) (string, error) {
		return "", errWeird
	}, Options{Candidates: []string{"a"}, Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindUnexpected {
		t.Errorf("Kind = %v, want KindUnexpected", got.Kind)
	}
}

func TestFetch_NoCandidatesReturnsNotFound(t *testing.T) {
	got := Fetch(func(string) (string, error) {
		t.Fatal("call should not run with no candidates")
		return "", nil
	}, Options{Exceptions: testExceptions(), Sleep: noSleep}, "test")

	if got.Kind != KindNotFound {
		t.Errorf("Kind = %v, want KindNotFound", got.Kind)
	}
}

func TestFetch_DynamicDelayInvokedPerAttempt(t *testing.T) {
	count := 0
	Fetch(func(string) (string, error) {
		return "ok", nil
	}, Options{
		Candidates: []string{"a"}, Exceptions: testExceptions(),
		DynamicDelay: func() { count++ }, Sleep: noSleep,
	}, "test")

	if count != 1 {
		t.Errorf("DynamicDelay invoked %d times, want 1", count)
	}
}

package hub_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"orgpool/internal/hub"
	"orgpool/internal/hub/hubtest"
)

func TestQueryDecodesRecords(t *testing.T) {
	fake := hubtest.New(t)
	fake.QueryFn = func(soql string, tooling bool) []map[string]any {
		if tooling {
			t.Fatalf("unexpected tooling query")
		}
		return []map[string]any{
			{"Id": "rec1", "SignupUsername": "a@example.com"},
			{"Id": "rec2", "SignupUsername": "b@example.com"},
		}
	}
	var out []struct {
		ID             string `json:"Id"`
		SignupUsername string `json:"SignupUsername"`
	}
	if err := fake.Client().Query(context.Background(), "SELECT Id FROM ScratchOrgInfo", false, &out); err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 2 || out[0].ID != "rec1" || out[1].SignupUsername != "b@example.com" {
		t.Fatalf("unexpected records: %+v", out)
	}
}

func TestQueryRetriesAndPropagatesAPIError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"REQUEST_LIMIT_EXCEEDED"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := hub.New(srv.URL, "tok", "54.0")
	c.QueryRetry = hub.RetryPolicy{Attempts: 3, Wait: time.Millisecond}
	var out []map[string]any
	err := c.Query(context.Background(), "SELECT Id FROM ScratchOrgInfo", false, &out)
	var apiErr *hub.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDeleteRecordsBatchesIDs(t *testing.T) {
	fake := hubtest.New(t)
	ids := []string{"2SR000000000001", "2SR000000000002"}
	if err := fake.Client().DeleteRecords(context.Background(), ids); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.Deletes) != 1 {
		t.Fatalf("expected one composite delete, got %d", len(fake.Deletes))
	}
	if strings.Join(fake.Deletes[0], ",") != strings.Join(ids, ",") {
		t.Fatalf("unexpected ids: %v", fake.Deletes[0])
	}
}

func TestDeleteRecordsEmptyBatchIsNoop(t *testing.T) {
	fake := hubtest.New(t)
	if err := fake.Client().DeleteRecords(context.Background(), nil); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fake.Deletes) != 0 {
		t.Fatalf("expected no remote call")
	}
}

func TestGeneratePassword(t *testing.T) {
	fake := hubtest.New(t)
	fake.PasswordFn = func(username string) (string, bool) {
		if username != "so1@example.com" {
			t.Fatalf("unexpected username %q", username)
		}
		return "s3cret!", true
	}
	password, err := fake.Client().GeneratePassword(context.Background(), "so1@example.com")
	if err != nil {
		t.Fatalf("generate password: %v", err)
	}
	if password != "s3cret!" {
		t.Fatalf("unexpected password %q", password)
	}
}

func TestGeneratePasswordEmptyResult(t *testing.T) {
	fake := hubtest.New(t)
	fake.PasswordFn = func(string) (string, bool) { return "", false }
	password, err := fake.Client().GeneratePassword(context.Background(), "so1@example.com")
	if err != nil {
		t.Fatalf("generate password: %v", err)
	}
	if password != "" {
		t.Fatalf("expected empty password, got %q", password)
	}
}

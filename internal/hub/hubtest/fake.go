// Package hubtest provides an in-process fake DevHub for engine tests.
package hubtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"orgpool/internal/hub"
)

type UpdateCall struct {
	Object string
	ID     string
	Body   map[string]any
}

type CreateCall struct {
	Object string
	Body   map[string]any
}

type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// Fake is a scriptable DevHub double. Zero-value hooks mean "empty success".
type Fake struct {
	t      *testing.T
	mu     sync.Mutex
	server *httptest.Server

	Describe       hub.ObjectDescribe
	DescribeCalls  int
	DescribeStatus int

	// QueryFn returns the records for a SOQL statement.
	QueryFn    func(soql string, tooling bool) []map[string]any
	QueryCalls []string

	// Records backs GetRecord lookups, keyed by "Object/Id".
	Records map[string]map[string]any

	NextCreateID string
	Creates      []CreateCall

	UpdateStatus int
	Updates      []UpdateCall

	Deletes [][]string

	// PasswordFn returns (password, isSuccess) for generatePassword.
	PasswordFn func(username string) (string, bool)

	Emails []EmailCall
}

// New starts the fake and registers cleanup with t.
func New(t *testing.T) *Fake {
	t.Helper()
	f := &Fake{t: t, Records: map[string]map[string]any{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

// Client returns a hub client pointed at the fake with near-zero retry waits
// so failure-path tests do not sleep.
func (f *Fake) Client() *hub.Client {
	c := hub.New(f.server.URL, "test-token", "54.0")
	fast := hub.RetryPolicy{Attempts: 3, Wait: time.Millisecond}
	c.QueryRetry = fast
	c.RowRetry = fast
	c.DescribeRetry = fast
	c.MutationRetry = fast
	return c
}

// URL returns the fake's base URL.
func (f *Fake) URL() string { return f.server.URL }

func (f *Fake) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/services/data/v54.0/")
	switch {
	case path == "query" || path == "tooling/query":
		f.handleQuery(w, r, path == "tooling/query")
	case strings.HasPrefix(path, "sobjects/") && strings.HasSuffix(path, "/describe"):
		f.handleDescribe(w)
	case path == "composite/sobjects" && r.Method == http.MethodDelete:
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		f.Deletes = append(f.Deletes, ids)
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "[]")
	case path == "actions/standard/generatePassword":
		f.handlePassword(w, r)
	case path == "actions/standard/emailSimple":
		f.handleEmail(w, r)
	case strings.HasPrefix(path, "sobjects/"):
		f.handleRecord(w, r, strings.TrimPrefix(path, "sobjects/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *Fake) handleQuery(w http.ResponseWriter, r *http.Request, tooling bool) {
	soql := r.URL.Query().Get("q")
	f.QueryCalls = append(f.QueryCalls, soql)
	var records []map[string]any
	if f.QueryFn != nil {
		records = f.QueryFn(soql, tooling)
	}
	if records == nil {
		records = []map[string]any{}
	}
	writeJSON(w, map[string]any{"totalSize": len(records), "done": true, "records": records})
}

func (f *Fake) handleDescribe(w http.ResponseWriter) {
	f.DescribeCalls++
	if f.DescribeStatus != 0 {
		http.Error(w, `{"message":"describe failed"}`, f.DescribeStatus)
		return
	}
	writeJSON(w, f.Describe)
}

func (f *Fake) handleRecord(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.SplitN(rest, "/", 2)
	object := parts[0]
	switch {
	case len(parts) == 1 && r.Method == http.MethodPost:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.Creates = append(f.Creates, CreateCall{Object: object, Body: body})
		id := f.NextCreateID
		if id == "" {
			id = fmt.Sprintf("2SR%015d", len(f.Creates))
		}
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"id": id, "success": true})
	case len(parts) == 2 && r.Method == http.MethodGet:
		rec, ok := f.Records[object+"/"+parts[1]]
		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, rec)
	case len(parts) == 2 && r.Method == http.MethodPatch:
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.Updates = append(f.Updates, UpdateCall{Object: object, ID: parts[1], Body: body})
		if f.UpdateStatus != 0 {
			http.Error(w, `{"message":"update failed"}`, f.UpdateStatus)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (f *Fake) handlePassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Inputs []map[string]any `json:"inputs"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	username := ""
	if len(body.Inputs) > 0 {
		username, _ = body.Inputs[0]["username"].(string)
	}
	password, ok := "", false
	if f.PasswordFn != nil {
		password, ok = f.PasswordFn(username)
	}
	writeJSON(w, []map[string]any{{
		"isSuccess":    ok,
		"outputValues": map[string]any{"password": password},
	}})
}

func (f *Fake) handleEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Inputs []map[string]any `json:"inputs"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	for _, in := range body.Inputs {
		to, _ := in["emailAddresses"].(string)
		subject, _ := in["emailSubject"].(string)
		text, _ := in["emailBody"].(string)
		f.Emails = append(f.Emails, EmailCall{To: to, Subject: subject, Body: text})
	}
	writeJSON(w, []map[string]any{{"isSuccess": true}})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

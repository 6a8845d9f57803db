package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a retrying REST client for the DevHub. It borrows its auth
// material from the caller and owns nothing beyond the HTTP transport.
type Client struct {
	InstanceURL string
	AccessToken string
	APIVersion  string
	// HTTPClient must be set before first use; New does so. The client is
	// shared across goroutines and is never mutated after construction.
	HTTPClient *http.Client

	QueryRetry    RetryPolicy
	RowRetry      RetryPolicy
	DescribeRetry RetryPolicy
	MutationRetry RetryPolicy
}

// New creates a client with default retry budgets.
func New(instanceURL, accessToken, apiVersion string) *Client {
	return &Client{
		InstanceURL:   instanceURL,
		AccessToken:   accessToken,
		APIVersion:    apiVersion,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		QueryRetry:    defaultQueryRetry(),
		RowRetry:      defaultRowRetry(),
		DescribeRetry: defaultDescribeRetry(),
		MutationRetry: defaultMutationRetry(),
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("devhub error: status=%d body=%s", e.StatusCode, e.Body)
}

type queryResponse struct {
	TotalSize int               `json:"totalSize"`
	Done      bool              `json:"done"`
	Records   []json.RawMessage `json:"records"`
}

// Query runs a SOQL statement and decodes the records into out, which must
// be a pointer to a slice. Set tooling to route through the Tooling API.
func (c *Client) Query(ctx context.Context, soql string, tooling bool, out any) error {
	endpoint := "query"
	if tooling {
		endpoint = "tooling/query"
	}
	endpoint = fmt.Sprintf("%s?q=%s", endpoint, url.QueryEscape(soql))
	return c.QueryRetry.Do(ctx, func() error {
		var resp queryResponse
		if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return err
		}
		records, err := json.Marshal(resp.Records)
		if err != nil {
			return err
		}
		return json.Unmarshal(records, out)
	})
}

// PicklistValue is one entry of a picklist field's value set.
type PicklistValue struct {
	Value  string `json:"value"`
	Active bool   `json:"active"`
}

// FieldDescribe is the subset of field metadata the pool engines inspect.
type FieldDescribe struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	PicklistValues []PicklistValue `json:"picklistValues,omitempty"`
}

// ObjectDescribe is the result of a describe-object call.
type ObjectDescribe struct {
	Name   string          `json:"name"`
	Fields []FieldDescribe `json:"fields"`
}

// DescribeObject returns the field schema for an object.
func (c *Client) DescribeObject(ctx context.Context, object string) (ObjectDescribe, error) {
	var desc ObjectDescribe
	err := c.DescribeRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, fmt.Sprintf("sobjects/%s/describe", object), nil, &desc)
	})
	return desc, err
}

type createResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// CreateRecord inserts a record and returns its id.
func (c *Client) CreateRecord(ctx context.Context, object string, body any) (string, error) {
	var resp createResponse
	err := c.MutationRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodPost, fmt.Sprintf("sobjects/%s", object), body, &resp)
	})
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create %s returned no record id", object)
	}
	return resp.ID, nil
}

// GetRecord fetches a single record by id into out.
func (c *Client) GetRecord(ctx context.Context, object, id string, out any) error {
	return c.RowRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodGet, fmt.Sprintf("sobjects/%s/%s", object, id), nil, out)
	})
}

// UpdateRecord applies a partial update to a record by id.
func (c *Client) UpdateRecord(ctx context.Context, object, id string, body any) error {
	return c.MutationRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodPatch, fmt.Sprintf("sobjects/%s/%s", object, id), body, nil)
	})
}

// DeleteRecords removes a batch of records through the composite API.
func (c *Client) DeleteRecords(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	endpoint := fmt.Sprintf("composite/sobjects?ids=%s", url.QueryEscape(strings.Join(ids, ",")))
	return c.MutationRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
	})
}

type actionInput struct {
	Inputs []map[string]any `json:"inputs"`
}

type actionResult struct {
	IsSuccess    bool           `json:"isSuccess"`
	OutputValues map[string]any `json:"outputValues"`
}

// GeneratePassword asks the backend to set a fresh random password for the
// given user and returns it. An empty password in the response is reported
// as such; the caller decides whether that is fatal.
func (c *Client) GeneratePassword(ctx context.Context, username string) (string, error) {
	body := actionInput{Inputs: []map[string]any{{"username": username}}}
	var results []actionResult
	err := c.MutationRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodPost, "actions/standard/generatePassword", body, &results)
	})
	if err != nil {
		return "", err
	}
	if len(results) == 0 || !results[0].IsSuccess {
		return "", nil
	}
	password, _ := results[0].OutputValues["password"].(string)
	return password, nil
}

// SendEmail invokes the simple-email action.
func (c *Client) SendEmail(ctx context.Context, to, subject, body string) error {
	payload := actionInput{Inputs: []map[string]any{{
		"emailAddresses": to,
		"emailSubject":   subject,
		"emailBody":      body,
	}}}
	return c.MutationRetry.Do(ctx, func() error {
		return c.do(ctx, http.MethodPost, "actions/standard/emailSimple", payload, nil)
	})
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		return fmt.Errorf("hub client has no http client; construct it with New")
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return fmt.Sprintf("%s/services/data/v%s", strings.TrimRight(c.InstanceURL, "/"), c.APIVersion)
}

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidemark/tidemark/internal/record"
)

// TokenFunc supplies the bearer token for a request. Identity management is a
// collaborator's concern; the transport just attaches whatever it returns.
type TokenFunc func(ctx context.Context) (string, error)

// HTTPClient implements Client against the tidemark sync API.
type HTTPClient struct {
	BaseURL string
	Token   TokenFunc
	HTTP    *http.Client
}

// NewHTTPClient creates a transport for the given API endpoint.
func NewHTTPClient(baseURL string, token TokenFunc) *HTTPClient {
	return &HTTPClient{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

type versionResponse struct {
	Version int64 `json:"version"`
}

type taskBatchResponse struct {
	Tasks []record.Task `json:"tasks"`
}

type pushRequest struct {
	Tasks []*record.Task `json:"tasks"`
}

type pushResponse struct {
	Acks []record.Ack `json:"acks"`
}

type categoriesResponse struct {
	Categories []record.Category `json:"categories"`
}

// CurrentVersion implements Client.
func (c *HTTPClient) CurrentVersion(ctx context.Context) (int64, error) {
	var resp versionResponse
	if err := c.get(ctx, "version", "/api/v1/sync/version", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Version, nil
}

// TaskBatch implements Client.
func (c *HTTPClient) TaskBatch(ctx context.Context, delta int64) ([]record.Task, error) {
	query := url.Values{"delta": {strconv.FormatInt(delta, 10)}}
	var resp taskBatchResponse
	if err := c.get(ctx, "tasks", "/api/v1/sync/tasks", query, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// PushMutations implements Client.
func (c *HTTPClient) PushMutations(ctx context.Context, tasks []*record.Task) ([]record.Ack, error) {
	body, err := json.Marshal(pushRequest{Tasks: tasks})
	if err != nil {
		return nil, &Error{Op: "push", Err: fmt.Errorf("failed to marshal push batch: %w", err)}
	}

	var resp pushResponse
	if err := c.do(ctx, "push", http.MethodPost, "/api/v1/sync/tasks/batch", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Acks, nil
}

// Categories implements Client.
func (c *HTTPClient) Categories(ctx context.Context) ([]record.Category, error) {
	var resp categoriesResponse
	if err := c.get(ctx, "categories", "/api/v1/sync/categories", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}

func (c *HTTPClient) get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, query, nil, out)
}

func (c *HTTPClient) do(ctx context.Context, op, method, path string, query url.Values, body []byte, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.Token != nil {
		token, err := c.Token(ctx)
		if err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to get token: %w", err)}
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}
	return nil
}

package client

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

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/pkg/middleware"
	"github.com/reelqueue/reelqueue/pkg/requestid"
)

// Client is an HTTP client for the reelqueue API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is returned for every non 2xx answer carrying the error envelope.
type APIError struct {
	StatusCode int
	Code       api.ErrorCode
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, e.Message)
}

type ListJobsParams struct {
	Limit    int
	Cursor   string
	Provider api.Provider
	Status   api.JobStatus
	Query    string
}

// Content is either a stream of the asset bytes or a redirect to where the
// provider keeps them.
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Location    string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *Client) Health(ctx context.Context) error {
	var health api.Health
	return c.do(ctx, http.MethodGet, "/api/healthz", nil, http.StatusOK, &health)
}

func (c *Client) ListProviders(ctx context.Context) (*api.ProviderList, error) {
	var list api.ProviderList
	if err := c.do(ctx, http.MethodGet, "/api/providers", nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) ListJobs(ctx context.Context, params ListJobsParams) (*api.JobList, error) {
	q := url.Values{}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}
	if params.Provider != "" {
		q.Set("provider", string(params.Provider))
	}
	if params.Status != "" {
		q.Set("status", string(params.Status))
	}
	if params.Query != "" {
		q.Set("q", params.Query)
	}

	path := "/api/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var list api.JobList
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*api.Job, error) {
	return c.job(ctx, http.MethodGet, jobPath(id, ""), nil, http.StatusOK)
}

func (c *Client) CreateJob(ctx context.Context, form api.JobCreate) (*api.Job, error) {
	return c.job(ctx, http.MethodPost, "/api/jobs", form, http.StatusCreated)
}

func (c *Client) RefreshJob(ctx context.Context, id string) (*api.Job, error) {
	return c.job(ctx, http.MethodPost, jobPath(id, "/refresh"), nil, http.StatusOK)
}

func (c *Client) RemixJob(ctx context.Context, id string, form api.JobRemix) (*api.Job, error) {
	return c.job(ctx, http.MethodPost, jobPath(id, "/remix"), form, http.StatusCreated)
}

func (c *Client) ExtendJob(ctx context.Context, id string, form api.JobExtend) (*api.Job, error) {
	return c.job(ctx, http.MethodPost, jobPath(id, "/extend"), form, http.StatusCreated)
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, jobPath(id, ""), nil, http.StatusNoContent, nil)
}

// GetContent opens asset index of a finished job. The caller closes Body
// when it is set.
func (c *Client) GetContent(ctx context.Context, id string, index int) (*Content, error) {
	path := jobPath(id, "/content") + "?asset=" + strconv.Itoa(index)
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &Content{Body: resp.Body, ContentType: resp.Header.Get("Content-Type")}, nil
	case http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect:
		_ = resp.Body.Close()
		return &Content{Location: resp.Header.Get("Location")}, nil
	default:
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, decodeError(resp)
	}
}

func (c *Client) job(ctx context.Context, method, path string, body any, expected int) (*api.Job, error) {
	var job api.Job
	if err := c.do(ctx, method, path, body, expected, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, expected int, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != expected {
		return decodeError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(middleware.RequestIDHeader, requestid.Generate())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call reelqueue api: %w", err)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope api.Error
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}
	return &APIError{StatusCode: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
}

func jobPath(id, suffix string) string {
	return "/api/jobs/" + url.PathEscape(id) + suffix
}

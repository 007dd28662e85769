package veo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider"
	"go.uber.org/zap"
)

// Client talks to the Vertex AI predictLongRunning endpoints.
type Client struct {
	projectID  string
	location   string
	model      string
	endpoint   string
	storageURL string
	tokens     *TokenSource
	http       *provider.HTTPClient
}

var (
	_ provider.Adapter  = (*Client)(nil)
	_ provider.Extender = (*Client)(nil)
)

func NewClient(cfg config.VeoConfig, timeout time.Duration) (*Client, error) {
	credentials := []byte(cfg.ServiceAccountJSON)
	if len(credentials) == 0 {
		data, err := os.ReadFile(cfg.ServiceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		credentials = data
	}

	tokens, err := NewTokenSource(credentials, cfg.TokenURL, timeout)
	if err != nil {
		return nil, err
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	location := cfg.Location
	if location == "" {
		location = "us-central1"
	}
	return &Client{
		projectID:  cfg.ProjectID,
		location:   location,
		model:      model,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		storageURL: strings.TrimRight(cfg.StorageURL, "/"),
		tokens:     tokens,
		http:       provider.NewHTTPClient(string(api.ProviderVeo), timeout),
	}, nil
}

func (c *Client) ID() api.Provider {
	return api.ProviderVeo
}

func (c *Client) Metadata() api.ProviderInfo {
	return metadata(c.model, false)
}

func (c *Client) ValidateParams(params map[string]any) error {
	_, err := decodeParams(params)
	return err
}

func (c *Client) Submit(ctx context.Context, job provider.Job) (*provider.SubmitResult, error) {
	params, err := decodeParams(job.Params)
	if err != nil {
		return nil, err
	}
	instance, err := params.instance(job.Prompt)
	if err != nil {
		return nil, err
	}
	model := params.model(c.model)

	name, err := c.predict(ctx, model, instance, params.parameters(model), "submit")
	if err != nil {
		return nil, err
	}

	zap.S().Named("veo").Infow("operation started", "job_id", job.ID, "operation", name)
	return &provider.SubmitResult{ProviderJobID: name, Status: api.JobStatusRunning}, nil
}

func (c *Client) Refresh(ctx context.Context, job provider.Job) (*provider.RefreshResult, error) {
	op, err := parseOperationName(job.ProviderJobID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"operationName": job.ProviderJobID})
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/projects/%s/locations/%s/publishers/google/models/%s:fetchPredictOperation", op.Project, op.Location, op.Model)
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL(op.Location)+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.http.Do(req, "refresh")
	if err != nil {
		return nil, err
	}

	var fetched operation
	if err := json.Unmarshal(body, &fetched); err != nil {
		return nil, c.http.NewErrMalformedResponse("refresh", err)
	}
	if fetched.Name == "" {
		fetched.Name = job.ProviderJobID
	}
	var raw any
	_ = json.Unmarshal(body, &raw)

	return mapOperation(&fetched, raw), nil
}

func (c *Client) Content(ctx context.Context, job provider.Job, assetIndex int) (*provider.Content, error) {
	if assetIndex < 0 || assetIndex >= len(job.Outputs) {
		return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
	}
	asset := job.Outputs[assetIndex]

	switch {
	case asset.BytesBase64 != nil && *asset.BytesBase64 != "":
		return inlineContent(job.ID, assetIndex, asset)
	case strings.HasPrefix(asset.Uri, "gs://"):
		return c.storageContent(ctx, job.ID, assetIndex, asset)
	case strings.HasPrefix(asset.Uri, "https://"):
		return &provider.Content{RedirectURL: asset.Uri}, nil
	default:
		return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
	}
}

func (c *Client) Extend(ctx context.Context, job provider.Job, input provider.ExtendInput) (*provider.SubmitResult, error) {
	params, err := decodeParams(provider.MergeParams(job.Params, input.Params))
	if err != nil {
		return nil, err
	}

	model := params.model(c.model)
	if op, err := parseOperationName(job.ProviderJobID); err == nil {
		model = op.Model
	}

	source, err := extendSource(job, input, model)
	if err != nil {
		return nil, err
	}

	instance := map[string]any{
		"prompt": input.Prompt,
		"video": map[string]any{
			"bytesBase64Encoded": *source.BytesBase64,
			"mimeType":           source.Kind,
		},
	}
	name, err := c.predict(ctx, model, instance, params.parameters(model), "extend")
	if err != nil {
		return nil, err
	}

	zap.S().Named("veo").Infow("extension started", "source_operation", job.ProviderJobID, "operation", name)
	return &provider.SubmitResult{ProviderJobID: name, Status: api.JobStatusRunning}, nil
}

// Delete is a no-op, Vertex operations expire on their own.
func (c *Client) Delete(_ context.Context, _ provider.Job) error {
	return nil
}

func (c *Client) predict(ctx context.Context, model string, instance, parameters map[string]any, operation string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"instances":  []map[string]any{instance},
		"parameters": parameters,
	})
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/projects/%s/locations/%s/publishers/google/models/%s:predictLongRunning", c.projectID, c.location, model)
	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL(c.location)+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.http.Do(req, operation)
	if err != nil {
		return "", err
	}

	var resp struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", c.http.NewErrMalformedResponse(operation, err)
	}
	if resp.Name == "" {
		return "", c.http.NewErrMalformedResponse(operation, errors.New("missing operation name"))
	}
	return resp.Name, nil
}

func (c *Client) storageContent(ctx context.Context, jobID string, index int, asset api.Asset) (*provider.Content, error) {
	bucket, object, ok := strings.Cut(strings.TrimPrefix(asset.Uri, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return nil, provider.NewErrAssetNotFound(jobID, index)
	}

	target := fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media", c.storageURL, url.PathEscape(bucket), url.PathEscape(object))
	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Stream(req, "content")
	if err != nil {
		var perr *provider.ErrProviderRequest
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return nil, provider.NewErrAssetNotFound(jobID, index)
		}
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = asset.Kind
	}
	return &provider.Content{
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

func (c *Client) baseURL(location string) string {
	if c.endpoint != "" {
		return c.endpoint
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", location)
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func inlineContent(jobID string, index int, asset api.Asset) (*provider.Content, error) {
	data, err := base64.StdEncoding.DecodeString(*asset.BytesBase64)
	if err != nil {
		return nil, fmt.Errorf("output %d of job %s is not valid base64: %w", index, jobID, err)
	}
	contentType := asset.Kind
	if contentType == "" {
		contentType = videoKind
	}
	return &provider.Content{
		ContentType:   contentType,
		ContentLength: int64(len(data)),
		Body:          io.NopCloser(bytes.NewReader(data)),
	}, nil
}

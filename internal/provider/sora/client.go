package sora

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/config"
	"github.com/reelqueue/reelqueue/internal/provider"
	"go.uber.org/zap"
)

// Client talks to the OpenAI /videos endpoints.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *provider.HTTPClient
}

var (
	_ provider.Adapter = (*Client)(nil)
	_ provider.Remixer = (*Client)(nil)
)

func NewClient(cfg config.SoraConfig, timeout time.Duration) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		http:    provider.NewHTTPClient(string(api.ProviderSora), timeout),
	}
}

type videoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type video struct {
	ID                 string      `json:"id"`
	Object             string      `json:"object"`
	Status             string      `json:"status"`
	Progress           *int        `json:"progress"`
	Model              string      `json:"model"`
	Seconds            string      `json:"seconds"`
	Size               string      `json:"size"`
	RemixedFromVideoID *string     `json:"remixed_from_video_id"`
	Error              *videoError `json:"error"`
}

func (c *Client) ID() api.Provider {
	return api.ProviderSora
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

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	model := params.Model
	if model == "" {
		model = c.model
	}
	fields := map[string]string{
		"prompt": job.Prompt,
		"model":  model,
	}
	if params.Seconds != "" {
		fields["seconds"] = string(params.Seconds)
	}
	if params.Size != "" {
		fields["size"] = params.Size
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}

	if ref := params.reference(); ref != nil {
		if err := writeReference(form, ref); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/videos", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	v, err := c.doVideo(req, "submit")
	if err != nil {
		return nil, err
	}

	zap.S().Named("sora").Infow("video submitted", "job_id", job.ID, "video_id", v.ID, "status", v.Status)
	return &provider.SubmitResult{
		ProviderJobID: v.ID,
		Status:        MapStatus(v.Status),
		ProgressPct:   v.Progress,
	}, nil
}

func (c *Client) Refresh(ctx context.Context, job provider.Job) (*provider.RefreshResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/videos/"+url.PathEscape(job.ProviderJobID), nil)
	if err != nil {
		return nil, err
	}

	raw, err := c.http.Do(req, "refresh")
	if err != nil {
		return nil, err
	}
	var v video
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, c.http.NewErrMalformedResponse("refresh", err)
	}

	return refreshResult(&v, raw), nil
}

func refreshResult(v *video, raw []byte) *provider.RefreshResult {
	result := &provider.RefreshResult{
		Status:      MapStatus(v.Status),
		ProgressPct: v.Progress,
	}

	switch result.Status {
	case api.JobStatusSucceeded:
		result.ProgressPct = provider.IntPtr(100)
		result.Outputs = []api.Asset{videoAsset(v.ID)}
	case api.JobStatusFailed:
		message := fmt.Sprintf("video %s", v.Status)
		if v.Error != nil && v.Error.Message != "" {
			message = v.Error.Message
		}
		var details any
		_ = json.Unmarshal(raw, &details)
		result.Error = &api.JobError{Message: message, Raw: details}
	}
	return result
}

func (c *Client) Content(ctx context.Context, job provider.Job, assetIndex int) (*provider.Content, error) {
	if assetIndex != 0 || job.ProviderJobID == "" || assetIndex >= len(job.Outputs) {
		return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
	}

	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/videos/%s/content", url.PathEscape(job.ProviderJobID)), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Stream(req, "content")
	if err != nil {
		var perr *provider.ErrProviderRequest
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return nil, provider.NewErrAssetNotFound(job.ID, assetIndex)
		}
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = videoKind
	}
	return &provider.Content{
		ContentType:   contentType,
		ContentLength: resp.ContentLength,
		Body:          resp.Body,
	}, nil
}

func (c *Client) Remix(ctx context.Context, job provider.Job, input provider.RemixInput) (*provider.SubmitResult, error) {
	payload, err := json.Marshal(map[string]string{"prompt": input.Prompt})
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("/videos/%s/remix", url.PathEscape(job.ProviderJobID)), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	v, err := c.doVideo(req, "remix")
	if err != nil {
		return nil, err
	}

	zap.S().Named("sora").Infow("remix submitted", "source_video_id", job.ProviderJobID, "video_id", v.ID)
	return &provider.SubmitResult{
		ProviderJobID: v.ID,
		Status:        MapStatus(v.Status),
		ProgressPct:   v.Progress,
	}, nil
}

func (c *Client) Delete(ctx context.Context, job provider.Job) error {
	if job.ProviderJobID == "" {
		return nil
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "/videos/"+url.PathEscape(job.ProviderJobID), nil)
	if err != nil {
		return err
	}

	if _, err := c.http.Do(req, "delete"); err != nil {
		var perr *provider.ErrProviderRequest
		if errors.As(err, &perr) && perr.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

func (c *Client) doVideo(req *http.Request, operation string) (*video, error) {
	raw, err := c.http.Do(req, operation)
	if err != nil {
		return nil, err
	}
	var v video
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, c.http.NewErrMalformedResponse(operation, err)
	}
	if v.ID == "" {
		return nil, c.http.NewErrMalformedResponse(operation, errors.New("missing video id"))
	}
	return &v, nil
}

func writeReference(form *multipart.Writer, ref *api.InputAsset) error {
	data, err := base64.StdEncoding.DecodeString(*ref.BytesBase64)
	if err != nil {
		return provider.NewErrInvalidParams("invalid params: reference image is not valid base64: %s", err)
	}

	mimeType := ref.MimeType
	if mimeType == "" {
		mimeType = ref.Kind
	}
	ext := "png"
	switch mimeType {
	case "image/jpeg":
		ext = "jpg"
	case "image/webp":
		ext = "webp"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="input_reference"; filename="reference.%s"`, ext))
	header.Set("Content-Type", mimeType)
	part, err := form.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to build form: %w", err)
	}
	_, err = part.Write(data)
	return err
}

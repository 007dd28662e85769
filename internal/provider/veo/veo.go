// Package veo adapts the Vertex AI Veo long running operations to the
// canonical job model.
package veo

import (
	"fmt"
	"regexp"
	"strings"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
)

const (
	DefaultModel = "veo-3.1-generate-preview"

	videoKind          = "video/mp4"
	maxReferenceImages = 3
)

var operationNameRe = regexp.MustCompile(`^projects/([^/]+)/locations/([^/]+)/publishers/google/models/([^/]+)/operations/([^/]+)$`)

type Params struct {
	provider.CommonParams
	AspectRatio      string `json:"aspectRatio,omitempty" validate:"omitempty,oneof=16:9 9:16"`
	DurationSeconds  int    `json:"durationSeconds,omitempty" validate:"omitempty,min=1,max=8"`
	SampleCount      int    `json:"sampleCount,omitempty" validate:"omitempty,min=1,max=4"`
	NegativePrompt   string `json:"negativePrompt,omitempty"`
	Seed             *int64 `json:"seed,omitempty" validate:"omitempty,min=0"`
	GenerateAudio    *bool  `json:"generateAudio,omitempty"`
	PersonGeneration string `json:"personGeneration,omitempty" validate:"omitempty,oneof=allow_adult dont_allow allow_all"`
	Resolution       string `json:"resolution,omitempty" validate:"omitempty,oneof=720p 1080p"`
	StorageUri       string `json:"storageUri,omitempty" validate:"omitempty,startswith=gs://"`
}

func decodeParams(params map[string]any) (*Params, error) {
	var p Params
	if err := provider.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if refs := p.Images(provider.AssetRoleReference); len(refs) > maxReferenceImages {
		return nil, provider.NewErrInvalidParams("invalid params: veo accepts at most %d reference images", maxReferenceImages)
	}
	for _, img := range p.Images() {
		if _, err := imageField(img); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

func (p *Params) model(fallback string) string {
	if p.Model != "" {
		return p.Model
	}
	return fallback
}

// firstFrame prefers an explicit first_frame image. Unlabelled images act as
// the first frame unless the job asks for reference-to-video.
func (p *Params) firstFrame() *api.InputAsset {
	if images := p.Images(provider.AssetRoleFirstFrame); len(images) > 0 {
		return &images[0]
	}
	if p.Mode == provider.ModeReferenceToVideo {
		return nil
	}
	if images := p.Images(""); len(images) > 0 {
		return &images[0]
	}
	return nil
}

func (p *Params) lastFrame() *api.InputAsset {
	if images := p.Images(provider.AssetRoleLastFrame); len(images) > 0 {
		return &images[0]
	}
	return nil
}

func (p *Params) instance(prompt string) (map[string]any, error) {
	instance := map[string]any{"prompt": prompt}

	if img := p.firstFrame(); img != nil {
		field, err := imageField(*img)
		if err != nil {
			return nil, err
		}
		instance["image"] = field
	}
	if img := p.lastFrame(); img != nil {
		field, err := imageField(*img)
		if err != nil {
			return nil, err
		}
		instance["lastFrame"] = field
	}

	refs := p.Images(provider.AssetRoleReference)
	if len(refs) > 0 {
		references := make([]map[string]any, 0, len(refs))
		for _, ref := range refs {
			field, err := imageField(ref)
			if err != nil {
				return nil, err
			}
			references = append(references, map[string]any{"image": field, "referenceType": "asset"})
		}
		instance["referenceImages"] = references
	}
	return instance, nil
}

func (p *Params) parameters(model string) map[string]any {
	parameters := map[string]any{
		"aspectRatio":     "16:9",
		"durationSeconds": 8,
		"sampleCount":     1,
	}
	if p.AspectRatio != "" {
		parameters["aspectRatio"] = p.AspectRatio
	}
	if p.DurationSeconds > 0 {
		parameters["durationSeconds"] = p.DurationSeconds
	}
	if p.SampleCount > 0 {
		parameters["sampleCount"] = p.SampleCount
	}
	if p.NegativePrompt != "" {
		parameters["negativePrompt"] = p.NegativePrompt
	}
	if p.Seed != nil {
		parameters["seed"] = *p.Seed
	}
	if p.PersonGeneration != "" {
		parameters["personGeneration"] = p.PersonGeneration
	}
	if p.Resolution != "" {
		parameters["resolution"] = p.Resolution
	}
	if p.StorageUri != "" {
		parameters["storageUri"] = p.StorageUri
	}
	if supportsAudio(model) {
		audio := true
		if p.GenerateAudio != nil {
			audio = *p.GenerateAudio
		}
		parameters["generateAudio"] = audio
	}
	return parameters
}

// imageField renders an input image the way Vertex expects it: inline bytes or
// a Cloud Storage object.
func imageField(a api.InputAsset) (map[string]any, error) {
	mimeType := a.MimeType
	if mimeType == "" && strings.Contains(a.Kind, "/") {
		mimeType = a.Kind
	}
	if mimeType == "" {
		mimeType = "image/png"
	}

	switch {
	case a.BytesBase64 != nil && *a.BytesBase64 != "":
		return map[string]any{"bytesBase64Encoded": *a.BytesBase64, "mimeType": mimeType}, nil
	case a.Uri != nil && strings.HasPrefix(*a.Uri, "gs://"):
		return map[string]any{"gcsUri": *a.Uri, "mimeType": mimeType}, nil
	default:
		return nil, provider.NewErrInvalidParams("invalid params: veo images must carry bytesBase64 or a gs:// uri")
	}
}

type operationName struct {
	Project   string
	Location  string
	Model     string
	Operation string
}

// parseOperationName splits
// projects/{p}/locations/{loc}/publishers/google/models/{model}/operations/{id}.
// Operations are pinned to the region that created them.
func parseOperationName(name string) (*operationName, error) {
	m := operationNameRe.FindStringSubmatch(name)
	if m == nil {
		return nil, fmt.Errorf("unexpected veo operation name %q", name)
	}
	return &operationName{Project: m[1], Location: m[2], Model: m[3], Operation: m[4]}, nil
}

func supportsExtend(model string) bool {
	return strings.HasPrefix(model, "veo-2.0-generate") || strings.HasPrefix(model, "veo-3.1")
}

func supportsAudio(model string) bool {
	return strings.HasPrefix(model, "veo-3")
}

func metadata(model string, stub bool) api.ProviderInfo {
	return api.ProviderInfo{
		Id:             api.ProviderVeo,
		Label:          "Google Veo",
		DefaultModel:   model,
		SupportedModes: []string{provider.ModeTextToVideo, provider.ModeImageToVideo, provider.ModeReferenceToVideo},
		Capabilities: api.ProviderCapabilities{
			Remix:          false,
			Extend:         true,
			ReferenceImage: true,
		},
		Stub: stub,
	}
}

// extendSource returns the output of job that an extension starts from.
func extendSource(job provider.Job, input provider.ExtendInput, model string) (*api.Asset, error) {
	if !supportsExtend(model) {
		return nil, provider.NewErrInvalidParams("model %s does not support extend", model)
	}
	if input.SourceAssetIndex < 0 || input.SourceAssetIndex >= len(job.Outputs) {
		return nil, provider.NewErrInvalidParams("job %s has no output at index %d", job.ID, input.SourceAssetIndex)
	}
	asset := job.Outputs[input.SourceAssetIndex]
	if asset.BytesBase64 == nil || *asset.BytesBase64 == "" {
		return nil, provider.NewErrInvalidParams("output %d of job %s has no inline bytes and cannot be extended", input.SourceAssetIndex, job.ID)
	}
	return &asset, nil
}

type operationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type generatedVideo struct {
	GcsUri             string `json:"gcsUri,omitempty"`
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MimeType           string `json:"mimeType,omitempty"`
}

type operationResponse struct {
	RaiMediaFilteredCount   int              `json:"raiMediaFilteredCount"`
	RaiMediaFilteredReasons []string         `json:"raiMediaFilteredReasons"`
	Videos                  []generatedVideo `json:"videos"`
}

type operation struct {
	Name     string             `json:"name"`
	Done     bool               `json:"done"`
	Error    *operationError    `json:"error"`
	Response *operationResponse `json:"response"`
}

// mapOperation turns a fetched operation into a refresh result. Filtered
// samples fail the whole job; surviving descriptors are kept in error.raw.
func mapOperation(op *operation, raw any) *provider.RefreshResult {
	if !op.Done {
		return &provider.RefreshResult{Status: api.JobStatusRunning}
	}

	if op.Error != nil {
		message := op.Error.Message
		if message == "" {
			message = fmt.Sprintf("operation failed with code %d", op.Error.Code)
		}
		return &provider.RefreshResult{
			Status: api.JobStatusFailed,
			Error:  &api.JobError{Message: message, Raw: raw},
		}
	}

	var outputs []api.Asset
	if op.Response != nil {
		for i, v := range op.Response.Videos {
			outputs = append(outputs, videoAsset(op.Name, i, v))
		}
	}

	if op.Response != nil && op.Response.RaiMediaFilteredCount > 0 {
		message := fmt.Sprintf("%d video(s) filtered by content safety", op.Response.RaiMediaFilteredCount)
		if len(op.Response.RaiMediaFilteredReasons) > 0 {
			message += ": " + strings.Join(op.Response.RaiMediaFilteredReasons, "; ")
		}
		survivors := make([]api.Asset, 0, len(outputs))
		for _, o := range outputs {
			survivors = append(survivors, api.Asset{Kind: o.Kind, Uri: o.Uri})
		}
		return &provider.RefreshResult{
			Status: api.JobStatusFailed,
			Error: &api.JobError{
				Message: message,
				Raw: map[string]any{
					"filteredCount":   op.Response.RaiMediaFilteredCount,
					"filteredReasons": op.Response.RaiMediaFilteredReasons,
					"outputs":         survivors,
				},
			},
		}
	}

	if len(outputs) == 0 {
		return &provider.RefreshResult{
			Status: api.JobStatusFailed,
			Error:  &api.JobError{Message: "operation finished without videos", Raw: raw},
		}
	}

	return &provider.RefreshResult{
		Status:  api.JobStatusSucceeded,
		Outputs: outputs,
	}
}

func videoAsset(opName string, index int, v generatedVideo) api.Asset {
	asset := api.Asset{Kind: videoKind, Uri: fmt.Sprintf("veo://%s/%d", opName, index)}
	if v.MimeType != "" {
		asset.Kind = v.MimeType
	}
	if v.GcsUri != "" {
		asset.Uri = v.GcsUri
	}
	if v.BytesBase64Encoded != "" {
		b := v.BytesBase64Encoded
		asset.BytesBase64 = &b
	}
	return asset
}

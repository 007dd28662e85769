// Package sora adapts the OpenAI video API to the canonical job model.
package sora

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/reelqueue/reelqueue/internal/provider"
)

const (
	DefaultModel = "sora-2"

	videoKind = "video/mp4"
)

// Seconds accepts both "8" and 8.
type Seconds string

func (s *Seconds) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = Seconds(n.String())
	return nil
}

type Params struct {
	provider.CommonParams
	Seconds Seconds `json:"seconds,omitempty" validate:"omitempty,oneof=4 8 12"`
	Size    string  `json:"size,omitempty" validate:"omitempty,oneof=720x1280 1280x720 1024x1792 1792x1024"`
}

// decodeParams decodes and validates params. The reference image, when
// present, must carry inline bytes since it is uploaded as a file.
func decodeParams(params map[string]any) (*Params, error) {
	var p Params
	if err := provider.DecodeParams(params, &p); err != nil {
		return nil, err
	}
	if ref := p.reference(); ref != nil {
		if ref.BytesBase64 == nil {
			return nil, provider.NewErrInvalidParams("invalid params: sora reference images must carry bytesBase64")
		}
		if _, err := base64.StdEncoding.DecodeString(*ref.BytesBase64); err != nil {
			return nil, provider.NewErrInvalidParams("invalid params: reference image is not valid base64: %s", err)
		}
	}
	return &p, nil
}

func (p *Params) reference() *api.InputAsset {
	images := p.Images()
	if len(images) == 0 {
		return nil
	}
	return &images[0]
}

func metadata(model string, stub bool) api.ProviderInfo {
	return api.ProviderInfo{
		Id:             api.ProviderSora,
		Label:          "OpenAI Sora",
		DefaultModel:   model,
		SupportedModes: []string{provider.ModeTextToVideo, provider.ModeImageToVideo},
		Capabilities: api.ProviderCapabilities{
			Remix:          true,
			Extend:         false,
			ReferenceImage: true,
		},
		Stub: stub,
	}
}

// MapStatus maps a Sora video status onto the canonical status.
func MapStatus(status string) api.JobStatus {
	switch status {
	case "queued":
		return api.JobStatusQueued
	case "in_progress":
		return api.JobStatusRunning
	case "completed":
		return api.JobStatusSucceeded
	case "failed", "expired":
		return api.JobStatusFailed
	case "cancelled":
		return api.JobStatusCanceled
	default:
		return api.JobStatusUnknown
	}
}

func videoAsset(videoID string) api.Asset {
	return api.Asset{Kind: videoKind, Uri: fmt.Sprintf("sora://%s/video", videoID)}
}

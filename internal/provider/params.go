package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/thoas/go-funk"
)

const (
	AssetRoleFirstFrame = "first_frame"
	AssetRoleLastFrame  = "last_frame"
	AssetRoleReference  = "reference"
)

var validate = newParamsValidator()

func newParamsValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// CommonParams are the params every provider understands. Mode and assets are
// folded into the params bag when a job is created.
type CommonParams struct {
	Model  string           `json:"model,omitempty"`
	Mode   string           `json:"mode,omitempty" validate:"omitempty,oneof=text-to-video image-to-video reference-to-video"`
	Assets []api.InputAsset `json:"assets,omitempty" validate:"omitempty,max=4,dive"`
}

// Images returns the image assets whose role is one of roles. An empty role
// list matches every image.
func (c CommonParams) Images(roles ...string) []api.InputAsset {
	images := make([]api.InputAsset, 0, len(c.Assets))
	for _, a := range c.Assets {
		if !strings.HasPrefix(a.Kind, "image/") && a.Kind != "image" {
			continue
		}
		if len(roles) > 0 && !funk.ContainsString(roles, a.Role) {
			continue
		}
		images = append(images, a)
	}
	return images
}

// DecodeParams decodes the opaque params bag into out and validates it.
// Unknown keys are ignored so stored params stay forward compatible.
func DecodeParams(params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return NewErrInvalidParams("params are not serializable: %s", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return NewErrInvalidParams("invalid params: %s", describeDecodeError(err))
	}
	if err := validate.Struct(out); err != nil {
		return NewErrInvalidParams("invalid params: %s", describeValidationError(err))
	}
	return nil
}

// MergeParams returns a copy of base with the keys of overlay applied on top.
func MergeParams(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

func describeDecodeError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type.String())
	}
	return err.Error()
}

func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

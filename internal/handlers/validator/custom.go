package validator

import (
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
	"github.com/thoas/go-funk"
)

const maxPromptLength = 4000

var modes = []string{"text-to-video", "image-to-video", "reference-to-video"}

func providerValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(api.Provider)
	if !ok {
		return false
	}
	_, ok = api.StringToProvider(string(val))
	return ok
}

// promptValidator accepts non blank prompts of at most maxPromptLength characters.
func promptValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != "" && utf8.RuneCountInString(val) <= maxPromptLength
}

func modeValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return funk.ContainsString(modes, val)
}

// inputAssetValidator requires an asset to point somewhere or carry its bytes.
func inputAssetValidator(sl validator.StructLevel) {
	asset, ok := sl.Current().Interface().(api.InputAsset)
	if !ok {
		return
	}
	if asset.Uri == nil && asset.BytesBase64 == nil {
		sl.ReportError(asset.Uri, "uri", "Uri", "uri_or_bytes", "")
	}
}

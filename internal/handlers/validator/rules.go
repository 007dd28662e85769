package validator

import (
	"github.com/go-playground/validator/v10"
	api "github.com/reelqueue/reelqueue/api/v1alpha1"
)

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewJobValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("provider", providerValidator),
		},
		{
			Rule: registerFn("prompt", promptValidator),
		},
		{
			Rule: registerFn("mode", modeValidator),
		},
		{
			Rule: func(v *validator.Validate) {
				v.RegisterStructValidation(inputAssetValidator, api.InputAsset{})
			},
		},
	}
}

package utils

import (
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// NewConfigValidationFieldRangeError is used when a numeric config field is outside [low, high].
func NewConfigValidationFieldRangeError(path, field string, value, low, high interface{}) error {
	return goutils.NewConfigValidationError(path,
		errors.Errorf("%q must be between %v and %v, got %v", field, low, high, value))
}

// NewConfigValidationFieldChoiceError is used when a string config field is not one of choices.
func NewConfigValidationFieldChoiceError(path, field, value string, choices ...string) error {
	return goutils.NewConfigValidationError(path,
		errors.Errorf("%q must be one of %q, got %q", field, choices, value))
}

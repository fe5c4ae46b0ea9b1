package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestConfigValidationErrors(t *testing.T) {
	err := NewConfigValidationFieldRangeError("octree", "num_levels", 14, 1, 11)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "octree")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"num_levels" must be between 1 and 11, got 14`)

	err = NewConfigValidationFieldChoiceError("octree", "reduction", "median", "average", "weighted")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"reduction" must be one of`)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"median"`)
}

package validation_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pixvaultapp/pixvault-server/internal/errors"
	"github.com/pixvaultapp/pixvault-server/internal/validation"
)

type testSettings struct {
	Backend string `json:"backend" validate:"required,oneof=fs s3"`
	Bucket  string `json:"bucket" validate:"required_if=Backend s3"`
	Workers int    `json:"workers" validate:"gte=1"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(testSettings{Backend: "fs", Workers: 4})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		settings  testSettings
		wantField string
	}{
		{
			name:      "missing required field",
			settings:  testSettings{Workers: 1},
			wantField: "backend",
		},
		{
			name:      "value outside allowed set",
			settings:  testSettings{Backend: "gcs", Workers: 1},
			wantField: "backend",
		},
		{
			name:      "conditionally required field",
			settings:  testSettings{Backend: "s3", Workers: 1},
			wantField: "bucket",
		},
		{
			name:      "numeric bound",
			settings:  testSettings{Backend: "fs", Workers: 0},
			wantField: "workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.settings)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrValidation))

			var appErr *apperrors.Error
			require.True(t, errors.As(err, &appErr))
			details, ok := appErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(testSettings{Workers: 1})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.True(t, errors.As(err, &appErr))
	details, ok := appErr.Details.(map[string]string)
	require.True(t, ok)

	// Should use the JSON tag name "backend", not the field name "Backend"
	assert.Contains(t, details, "backend")
	assert.NotContains(t, details, "Backend")
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStep(t *testing.T) {
	tests := []struct {
		source string
		want   Step
	}{
		{"cli", StepEntry},
		{"step-one", StepOne},
		{"step-two", StepTwo},
		{"step-three", StepThree},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			got, err := ParseStep(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, got.String())
			assert.True(t, got.Valid())
		})
	}
}

func TestParseStepRejectsUnknownSource(t *testing.T) {
	for _, source := range []string{"", "step-four", "CLI", " step-one"} {
		_, err := ParseStep(source)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnrecognisedSource))
		assert.Contains(t, err.Error(), source)
	}
}

func TestStepZeroValueIsInvalid(t *testing.T) {
	var s Step
	assert.False(t, s.Valid())
	assert.Equal(t, "step(0)", s.String())
}

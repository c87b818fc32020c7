package utils

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type todoPayload struct {
	ID      uuid.UUID `json:"id" validate:"required"`
	Content string    `json:"content" validate:"required,min=1,max=256"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(todoPayload{ID: uuid.New(), Content: "x"}))
	})

	t.Run("missing fields use json names", func(t *testing.T) {
		err := ValidateStruct(todoPayload{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "id is required", fields["id"])
		assert.Equal(t, "content is required", fields["content"])
	})

	t.Run("content too long", func(t *testing.T) {
		err := ValidateStruct(todoPayload{ID: uuid.New(), Content: strings.Repeat("a", 257)})
		require.Error(t, err)
		assert.Equal(t, "content must be at most 256 characters", GetValidationFields(err)["content"])
	})

	t.Run("content at the limit", func(t *testing.T) {
		assert.NoError(t, ValidateStruct(todoPayload{ID: uuid.New(), Content: strings.Repeat("a", 256)}))
	})
}

func TestGetValidationFields_NonValidationError(t *testing.T) {
	assert.Nil(t, GetValidationFields(assert.AnError))
	assert.False(t, IsValidationError(assert.AnError))
}

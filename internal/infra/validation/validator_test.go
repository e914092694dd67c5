package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carshare/internal/domain/shared/apperr"
)

type sample struct {
	ActorID string `validate:"required"`
	Rating  int    `validate:"min=1,max=5"`
	Status  string `validate:"omitempty,oneof=confirmed cancelled"`
}

func TestValidate(t *testing.T) {
	v := New()
	ctx := context.Background()

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, v.Validate(ctx, sample{ActorID: "u-1", Rating: 4}))
		assert.NoError(t, v.Validate(ctx, &sample{ActorID: "u-1", Rating: 1, Status: "cancelled"}))
	})

	t.Run("field messages", func(t *testing.T) {
		err := v.Validate(ctx, sample{Rating: 9, Status: "active"})
		require.ErrorIs(t, err, apperr.ErrInvalidInput)
		assert.Equal(t, "ActorID: this field is required; Rating: maximum is 5; Status: must be one of: confirmed, cancelled", err.Error())
	})

	t.Run("non-struct", func(t *testing.T) {
		assert.NoError(t, v.Validate(ctx, "plain"))
	})
}

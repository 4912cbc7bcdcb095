package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		is   func(error) bool
		kind Kind
	}{
		{"validation", Validation("send", ErrEmptyBody), IsValidation, KindValidation},
		{"persistence", Persistence("fetch history", cause), IsPersistence, KindPersistence},
		{"transient", TransientDelivery("poll", cause), IsTransientDelivery, KindTransientDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.is(tt.err))
			kind, ok := KindOf(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)

			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.True(t, tt.is(wrapped))
		})
	}
}

func TestUnwrapKeepsSentinel(t *testing.T) {
	err := Validation("send", ErrEmptyBody)
	assert.ErrorIs(t, err, ErrEmptyBody)
	assert.False(t, IsPersistence(err))
	assert.Equal(t, "validation: send: message body is empty", err.Error())
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Persistence("send", nil))
}

func TestWrapSameKindIsNotDoubled(t *testing.T) {
	inner := Persistence("insert", errors.New("down"))
	outer := Persistence("send", inner)
	assert.Same(t, inner, outer)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "transient_delivery", KindTransientDelivery.String())
	assert.Equal(t, "unknown", Kind(42).String())
}

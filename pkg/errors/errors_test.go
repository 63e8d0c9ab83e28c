package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	apperrors "github.com/koopa0/video-engagement/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Is(t *testing.T) {
	wrapped := fmt.Errorf("add comment: %w", apperrors.ErrTryAgain)

	assert.True(t, stderrors.Is(wrapped, apperrors.ErrTryAgain))
	assert.True(t, apperrors.IsTryAgain(wrapped))
	assert.False(t, apperrors.IsNotFound(wrapped))
}

func TestAppError_WithDetailsDoesNotMutate(t *testing.T) {
	detailed := apperrors.ErrVideoNotFound.WithDetails("video 42")

	assert.Equal(t, "video 42", detailed.Details)
	assert.Empty(t, apperrors.ErrVideoNotFound.Details)
	assert.True(t, apperrors.IsNotFound(detailed))
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"app error", apperrors.ErrUserMismatch, apperrors.ErrCodeForbidden},
		{"wrapped", apperrors.Wrap(stderrors.New("boom"), apperrors.ErrCodeVersionConflict, "conflict"), apperrors.ErrCodeVersionConflict},
		{"plain error", stderrors.New("boom"), apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, apperrors.Code(tt.err))
		})
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := stderrors.New("mongo down")
	err := apperrors.Wrap(cause, apperrors.ErrCodeInternal, "save video")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "mongo down")
}

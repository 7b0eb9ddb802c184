package response

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/pkg/errcode"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("pack x: %w", appErr.ErrNotFound), errcode.ErrNotFound},
		{fmt.Errorf("empty prompt: %w", appErr.ErrInvalid), errcode.ErrInvalid},
		{fmt.Errorf("path taken: %w", appErr.ErrConflict), errcode.ErrConflict},
		{appErr.ErrTooMany, errcode.ErrTooMany},
		{fmt.Errorf("no key: %w", appErr.ErrUnavailable), errcode.ErrAIUnavailable},
		{appErr.ErrModelMismatch, errcode.ErrModelMismatch},
		{errors.New("disk full"), errcode.ErrInternal},
	}
	for _, tt := range tests {
		code, msg := CodeOf(tt.err)
		require.Equal(t, tt.code, code, tt.err.Error())
		require.NotEmpty(t, msg)
	}
}

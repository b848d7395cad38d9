package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf_Wrapped(t *testing.T) {
	req := require.New(t)
	wrapped := fmt.Errorf("rename %s: %w", "chat-1", ErrNotAdmin)

	req.Equal(KindAuthorization, KindOf(wrapped))
	req.True(Is(wrapped, ErrNotAdmin))
	req.Equal(http.StatusForbidden, HTTPStatus(wrapped))
}

func TestKindOf_Unclassified(t *testing.T) {
	req := require.New(t)
	err := New("disk on fire")

	req.Equal(KindInternal, KindOf(err))
	req.Equal(http.StatusInternalServerError, HTTPStatus(err))
	req.Equal("internal server error", PublicMessage(err))
}

func TestHTTPStatus_Kinds(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrChatNotFound, http.StatusNotFound},
		{ErrEmptyMessage, http.StatusBadRequest},
		{ErrNotSender, http.StatusForbidden},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrUserAlreadyExists, http.StatusConflict},
		{ErrInconsistentState, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

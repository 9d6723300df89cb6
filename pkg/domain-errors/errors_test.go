package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches the outer code", func(t *testing.T) {
		err := New(CodeInvalidCredentials, "bad password")
		assert.True(t, HasCode(err, CodeInvalidCredentials))
		assert.False(t, HasCode(err, CodeStorage))
	})

	t.Run("matches a wrapped code", func(t *testing.T) {
		inner := New(CodeNetwork, "connection refused")
		outer := Wrap(inner, CodeServer, "login failed")
		assert.True(t, HasCode(outer, CodeNetwork))
		assert.True(t, HasCode(outer, CodeServer))
	})

	t.Run("does not match plain errors", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil in, nil out", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeStorage, "save failed"))
	})

	t.Run("cause stays reachable via errors.Is", func(t *testing.T) {
		cause := errors.New("disk full")
		err := Wrap(fmt.Errorf("write record: %w", cause), CodeStorage, "save failed")
		assert.True(t, errors.Is(err, cause))
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeAlreadyInProgress, CodeOf(New(CodeAlreadyInProgress, "login pending")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidCredentials: http.StatusUnauthorized,
		CodeNotAuthenticated:   http.StatusUnauthorized,
		CodeAlreadyInProgress:  http.StatusConflict,
		CodeBadRequest:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeNetwork:            http.StatusBadGateway,
		CodeServer:             http.StatusBadGateway,
		CodeStorage:            http.StatusInternalServerError,
		Code("mystery"):        http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, ToHTTPStatus(code), "code %s", code)
	}
}

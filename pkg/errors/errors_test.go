package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := Wrap(inner, "something failed")

	require.ErrorIs(t, err, inner)
	require.Equal(t, http.StatusInternalServerError, err.StatusCode)
	require.Contains(t, err.Error(), "boom")
}

func TestFromErrorPassesThroughAppErrors(t *testing.T) {
	original := New("TEAPOT", "short and stout", http.StatusTeapot)

	converted := FromError(original)
	require.Equal(t, original, converted)

	wrapped := FromError(errors.New("plain"))
	require.Equal(t, ErrInternalServer.Code, wrapped.Code)
	require.NotNil(t, wrapped.Internal)

	require.Nil(t, FromError(nil))
}

func TestWithInternalCopies(t *testing.T) {
	inner := errors.New("db down")
	err := ErrNotFound.WithInternal(inner)

	require.NotSame(t, ErrNotFound, err)
	require.Nil(t, ErrNotFound.Internal)
	require.ErrorIs(t, err, inner)
	require.Equal(t, ErrNotFound.Code, err.Code)
}

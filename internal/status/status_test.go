package status_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vincentkam/keybroker/internal/status"
)

func TestNewAndError(t *testing.T) {
	err := status.New(status.KeyNotFound, 40, "key %s missing", "abc")
	require.Equal(t, "KEY_NOT_FOUND: key abc missing", err.Error())
	require.True(t, status.Is(err, status.KeyNotFound))
	require.False(t, status.Is(err, status.KMSFailure))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := status.Wrap(status.MalformedKeyDocument, 10, cause, "parsing doc")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "boom")
}

func TestIsRejectsOtherErrorTypes(t *testing.T) {
	require.False(t, status.Is(errors.New("plain"), status.KeyNotFound))
}

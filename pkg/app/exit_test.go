package app

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

func TestClassifyExitError(t *testing.T) {
	require.Equal(t, ExitGeneric, ClassifyExitError(nil))
	require.Equal(t, ExitNoCredentials, ClassifyExitError(fmt.Errorf("wrap: %w", ErrNoCredential)))
	require.Equal(t, ExitInvalidArgs, ClassifyExitError(api.NewError(api.ErrKindConfigInvalid, "x", fmt.Errorf("bad"))))
	require.Equal(t, ExitNoCredentials, ClassifyExitError(api.NewError(api.ErrKindVaultBackendFailure, "x", fmt.Errorf("bad"))))
	require.Equal(t, ExitSignerUnreachable, ClassifyExitError(api.NewError(api.ErrKindSignerUnreachable, "x", fmt.Errorf("bad"))))
	require.Equal(t, ExitSignerUnreachable, ClassifyExitError(api.NewError(api.ErrKindSignerTimeout, "x", fmt.Errorf("bad"))))
	require.Equal(t, ExitGeneric, ClassifyExitError(fmt.Errorf("plain")))
}

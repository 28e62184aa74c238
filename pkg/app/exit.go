package app

import (
	"errors"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// ErrNoCredential is returned wherever a project references a public key
// the vault has no stored credential for — distinct from ConfigInvalid's
// "the config file itself is malformed" (exit code 3, which
// the ErrorKind taxonomy of has no dedicated kind for since
// that taxonomy classifies transport/signing failures, not CLI
// presentation).
var ErrNoCredential = errors.New("app: no credential available")

// ExitKind is the CLI-facing exit-code classification:
// 0 success, 1 generic failure, 2 invalid arguments, 3 no credentials
// available, 4 remote-signer unreachable. cmd/nsyte maps this onto the
// actual process exit code; pkg/app stays free of os.Exit calls so it
// stays testable.
type ExitKind int

const (
	ExitGeneric ExitKind = iota
	ExitInvalidArgs
	ExitNoCredentials
	ExitSignerUnreachable
)

// ClassifyExitError maps an error returned by a pkg/app operation onto
// the exit-code contract's categories.
func ClassifyExitError(err error) ExitKind {
	if err == nil {
		return ExitGeneric
	}
	if errors.Is(err, ErrNoCredential) {
		return ExitNoCredentials
	}
	switch api.KindOf(err) {
	case api.ErrKindConfigInvalid:
		return ExitInvalidArgs
	case api.ErrKindVaultBackendFailure:
		return ExitNoCredentials
	case api.ErrKindSignerUnreachable, api.ErrKindSignerTimeout:
		return ExitSignerUnreachable
	default:
		return ExitGeneric
	}
}

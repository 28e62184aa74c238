package signer

import (
	"context"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// Session is the subset of a remotesigner session that a Signer needs.
// Defined here (rather than importing pkg/remotesigner directly) so this
// package does not have to depend on the relay transport; pkg/app wires a
// concrete *remotesigner.Session in at construction time.
type Session interface {
	RemotePublicKey() string
	RequestSignature(ctx context.Context, draft api.EventDraft) (api.Event, error)
	Close() error
}

// RemoteSigner signs by delegating to a NIP-46-style remote session.
// SignEvent never computes a local id/signature: the remote side owns
// both, and this type only validates what comes back.
type RemoteSigner struct {
	session Session
}

// NewRemoteSigner wraps an already-connected session.
func NewRemoteSigner(session Session) *RemoteSigner {
	return &RemoteSigner{session: session}
}

func (r *RemoteSigner) PublicKey() string { return r.session.RemotePublicKey() }

func (r *RemoteSigner) SignEvent(ctx context.Context, draft api.EventDraft) (api.Event, error) {
	ev, err := r.session.RequestSignature(ctx, draft)
	if err != nil {
		return api.Event{}, err
	}
	ok, verr := VerifySignature(ev)
	if verr != nil || !ok {
		return api.Event{}, api.NewError(api.ErrKindSignerRejected, "signer.SignEvent", verr)
	}
	return ev, nil
}

func (r *RemoteSigner) Close() error { return r.session.Close() }

package remotesigner

import (
	"context"
	"fmt"
	"time"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

const handshakeTimeout = DefaultRequestTimeout

// handshakeClientInitiated implements the bunker:// variant: send
// "connect" carrying the secret, then "get_public_key" to learn the
// signing pubkey.
func (s *Session) handshakeClientInitiated(ctx context.Context, secret string) error {
	params := []string{}
	if secret != "" {
		params = []string{secret}
	}
	resp, err := s.call(ctx, "connect", params)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return api.NewError(api.ErrKindSignerRejected, "remotesigner.handshake", fmt.Errorf("%s", resp.Error))
	}

	pkResp, err := s.call(ctx, "get_public_key", nil)
	if err != nil {
		return err
	}
	if pkResp.Error != "" {
		return api.NewError(api.ErrKindSignerRejected, "remotesigner.handshake", fmt.Errorf("%s", pkResp.Error))
	}
	s.mu.Lock()
	s.userPubHex = pkResp.Result
	s.mu.Unlock()
	return nil
}

// handshakeSignerInitiated implements the nostrconnect:// variant: wait
// for the remote side's own "connect" request, check its secret, and
// learn both the remote signer's pubkey and the user pubkey from it.
func (s *Session) handshakeSignerInitiated(ctx context.Context, expectedSecret string) error {
	ch := make(chan incomingConnect, 1)
	s.mu.Lock()
	s.awaitConnect = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.awaitConnect = nil
		s.mu.Unlock()
	}()

	waitCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	select {
	case in := <-ch:
		if len(in.req.Params) > 0 && in.req.Params[0] != expectedSecret {
			return api.NewError(api.ErrKindSignerRejected, "remotesigner.handshake", fmt.Errorf("secret mismatch"))
		}
		s.mu.Lock()
		s.remotePubHex = in.fromPubKey
		s.userPubHex = in.fromPubKey
		s.mu.Unlock()
		return s.ack(ctx, in.req.ID, in.fromPubKey)
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return api.NewError(api.ErrKindCancelled, "remotesigner.handshake", ctx.Err())
		}
		return api.NewError(api.ErrKindSignerTimeout, "remotesigner.handshake", waitCtx.Err())
	}
}

// ack replies "ack" to the handshake's connect request id.
func (s *Session) ack(ctx context.Context, requestID, peer string) error {
	raw, err := encodeResponse(response{ID: requestID, Result: "ack"})
	if err != nil {
		return err
	}
	key, err := sharedSecret(s.ephemeral, peer)
	if err != nil {
		return err
	}
	content, err := encrypt(key, []byte(raw))
	if err != nil {
		return err
	}
	draft := api.EventDraft{
		CreatedAt: time.Now().Unix(),
		Kind:      api.KindRemoteSigner,
		Tags:      api.Tags{{"p", peer}},
		Content:   content,
	}
	ev, err := s.ephemeralKey.SignEvent(ctx, draft)
	if err != nil {
		return err
	}
	results := s.pool.Publish(ctx, s.relays, ev)
	for _, r := range results {
		if r.Err == nil && r.Accepted {
			return nil
		}
	}
	return fmt.Errorf("remotesigner: no relay accepted the handshake ack")
}

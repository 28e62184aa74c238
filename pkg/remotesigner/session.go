package remotesigner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/event"
	"github.com/nsyte-dev/nsyte/pkg/relay"
	"github.com/nsyte-dev/nsyte/pkg/signer"
)

// State is a node in the Disconnected -> Connecting -> Ready ->
// Pending(id) -> Ready/Closed machine a session moves through.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StatePending
	StateClosed
)

// DefaultRequestTimeout is the per-call signing timeout.
const DefaultRequestTimeout = 30 * time.Second

// replayWindow discards responses whose originating event is older than
// this relative to receipt time.
const replayWindow = 60 * time.Second

// Session is one NIP-46-style connection to a remote signer, backed by a
// relay.Pool subscription. It implements signer.Session so pkg/signer's
// RemoteSigner can delegate to it directly.
type Session struct {
	pool   *relay.Pool
	relays []string

	ephemeral    *secp256k1.PrivateKey
	ephemeralPub string // x-only hex, used for the "p" tag and ECDH
	ephemeralKey *signer.LocalKey

	remotePubHex string // the remote signer's own key, used for ECDH
	userPubHex   string // the key events get signed as; set by connect/get_public_key

	sub *relay.Subscription

	mu      sync.Mutex
	state   State
	pending *pendingRequest

	// callSem is a size-1 semaphore serialising the round trip in call():
	// only one request may be outstanding on a session at a time, so a
	// second concurrent caller waits its turn on this channel rather than
	// failing outright.
	callSem chan struct{}

	awaitConnect chan incomingConnect // non-nil only while awaiting the signer-initiated handshake

	closeOnce sync.Once
}

// incomingConnect is a decrypted, verified "connect" request received
// from a peer, together with the pubkey that sent it.
type incomingConnect struct {
	fromPubKey string
	req        request
}

type pendingRequest struct {
	id      string
	replyCh chan response
}

func newEphemeral() (*secp256k1.PrivateKey, *signer.LocalKey, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, nil, err
	}
	priv := secp256k1.PrivKeyFromBytes(raw[:])
	local, err := signer.NewLocalKey(raw)
	if err != nil {
		return nil, nil, err
	}
	return priv, local, nil
}

func randomSecret() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// ConnectBunker performs the client-initiated handshake:
// the caller already has a bunker:// URL and sends a "connect" request
// carrying its secret.
func ConnectBunker(ctx context.Context, pool *relay.Pool, bunkerURI string) (*Session, error) {
	parsed, err := parseBunkerURL(bunkerURI)
	if err != nil {
		return nil, err
	}
	s, err := newSession(pool, parsed.Relays, parsed.RemotePubKey)
	if err != nil {
		return nil, err
	}
	s.state = StateConnecting
	if err := s.subscribe(ctx); err != nil {
		return nil, err
	}
	if err := s.handshakeClientInitiated(ctx, parsed.Secret); err != nil {
		s.Close()
		return nil, err
	}
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	return s, nil
}

// ListenNostrConnect performs the signer-initiated handshake: it builds
// and returns a nostrconnect:// URI (for display/QR), then blocks until
// the remote side sends its own "connect" request.
func ListenNostrConnect(ctx context.Context, pool *relay.Pool, relays []string, appName string) (*Session, string, error) {
	s, err := newSession(pool, relays, "")
	if err != nil {
		return nil, "", err
	}
	secret, err := randomSecret()
	if err != nil {
		return nil, "", err
	}
	uri := buildNostrConnectURI(s.ephemeralPub, relays, secret, appName)

	s.state = StateConnecting
	if err := s.subscribe(ctx); err != nil {
		return nil, "", err
	}
	if err := s.handshakeSignerInitiated(ctx, secret); err != nil {
		s.Close()
		return nil, "", err
	}
	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	return s, uri, nil
}

func newSession(pool *relay.Pool, relays []string, remotePub string) (*Session, error) {
	priv, local, err := newEphemeral()
	if err != nil {
		return nil, err
	}
	return &Session{
		pool:         pool,
		relays:       relays,
		ephemeral:    priv,
		ephemeralPub: local.PublicKey(),
		ephemeralKey: local,
		remotePubHex: remotePub,
		state:        StateDisconnected,
		callSem:      make(chan struct{}, 1),
	}, nil
}

// subscribe opens the inbound filter: remote-signer-kind events tagged
// with our ephemeral pubkey.
func (s *Session) subscribe(ctx context.Context) error {
	sub, err := s.pool.Subscribe(ctx, s.relays, []relay.Filter{{
		Kinds: []int{int(api.KindRemoteSigner)},
		Tags:  map[string][]string{"p": {s.ephemeralPub}},
	}})
	if err != nil {
		return api.NewError(api.ErrKindSignerUnreachable, "remotesigner.subscribe", err)
	}
	s.sub = sub
	go s.dispatchLoop()
	return nil
}

// dispatchLoop runs for the life of the session, decrypting inbound
// events and routing responses to the one outstanding pending request
// (invariant: at most one Pending(id) per session).
func (s *Session) dispatchLoop() {
	for msg := range s.sub.Out {
		if msg.Kind != relay.InboundEvent {
			continue
		}
		s.handleInbound(msg.Event)
	}
}

func (s *Session) handleInbound(ev api.Event) {
	if !event.VerifyID(ev) {
		return
	}
	ok, err := signer.VerifySignature(ev)
	if err != nil || !ok {
		return // : every inbound event is authenticity-checked before decryption
	}
	if time.Since(time.Unix(ev.CreatedAt, 0)) > replayWindow {
		return
	}

	key, err := sharedSecret(s.ephemeral, s.remotePeerForDecrypt(ev))
	if err != nil {
		return
	}
	plain, err := decrypt(key, ev.Content)
	if err != nil {
		return
	}

	s.mu.Lock()
	pending := s.pending
	awaiting := s.awaitConnect
	s.mu.Unlock()

	if awaiting != nil {
		if req, err := decodeRequest(plain); err == nil && req.Method == "connect" {
			select {
			case awaiting <- incomingConnect{fromPubKey: ev.PubKey, req: req}:
			default:
			}
			return
		}
	}

	if pending == nil {
		return
	}
	resp, err := decodeResponse(plain)
	if err != nil || resp.ID != pending.id {
		return
	}
	select {
	case pending.replyCh <- resp:
	default:
	}
}

// remotePeerForDecrypt resolves which hex pubkey the shared secret should
// be derived against: before the user pubkey is known, that is the
// remote signer's own key learned from the handshake.
func (s *Session) remotePeerForDecrypt(ev api.Event) string {
	if s.remotePubHex != "" {
		return s.remotePubHex
	}
	return ev.PubKey
}

// RemotePublicKey implements signer.Session.
func (s *Session) RemotePublicKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userPubHex
}

// RequestSignature implements signer.Session: it serialises draft as an
// unsigned event under the session's user pubkey, sends a sign_event
// request, and waits for the matching response or timeout.
func (s *Session) RequestSignature(ctx context.Context, draft api.EventDraft) (api.Event, error) {
	unsignedID := event.ID(s.RemotePublicKey(), draft.CreatedAt, draft.Kind, draft.Tags, draft.Content)
	payload := fmt.Sprintf(
		`{"id":"%s","pubkey":"%s","created_at":%d,"kind":%d,"tags":%s,"content":%q}`,
		unsignedID, s.RemotePublicKey(), draft.CreatedAt, int(draft.Kind), tagsToJSON(draft.Tags), draft.Content,
	)
	resp, err := s.call(ctx, "sign_event", []string{payload})
	if err != nil {
		return api.Event{}, err
	}
	if resp.Error != "" {
		return api.Event{}, api.NewError(api.ErrKindSignerRejected, "remotesigner.RequestSignature", fmt.Errorf("%s", resp.Error))
	}
	ev, err := decodeSignedEventJSON(resp.Result)
	if err != nil {
		return api.Event{}, api.NewError(api.ErrKindMalformed, "remotesigner.RequestSignature", err)
	}
	return ev, nil
}

// call sends one request/response round trip, enforcing the single
// outstanding Pending(id) invariant by serialising callers on callSem: a
// caller that arrives while another request is outstanding waits its turn
// instead of failing.
func (s *Session) call(ctx context.Context, method string, params []string) (response, error) {
	select {
	case s.callSem <- struct{}{}:
	case <-ctx.Done():
		return response{}, api.NewError(api.ErrKindCancelled, "remotesigner.call", ctx.Err())
	}
	defer func() { <-s.callSem }()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return response{}, api.NewError(api.ErrKindSignerUnreachable, "remotesigner.call", fmt.Errorf("session closed"))
	}
	id := uuid.NewString()
	replyCh := make(chan response, 1)
	s.pending = &pendingRequest{id: id, replyCh: replyCh}
	s.state = StatePending
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pending = nil
		if s.state == StatePending {
			s.state = StateReady
		}
		s.mu.Unlock()
	}()

	if err := s.send(ctx, request{ID: id, Method: method, Params: params}); err != nil {
		return response{}, api.NewError(api.ErrKindSignerUnreachable, "remotesigner.call", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()
	select {
	case resp := <-replyCh:
		return resp, nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return response{}, api.NewError(api.ErrKindCancelled, "remotesigner.call", ctx.Err())
		}
		return response{}, api.NewError(api.ErrKindSignerTimeout, "remotesigner.call", callCtx.Err())
	}
}

// send encrypts and publishes a request envelope to every session relay.
func (s *Session) send(ctx context.Context, req request) error {
	raw, err := encodeRequest(req)
	if err != nil {
		return err
	}
	peer := s.remotePubHex
	if peer == "" {
		peer = s.userPubHex
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
	return fmt.Errorf("remotesigner: no relay accepted the request event")
}

// Close tears down the session's subscription. Relay connections
// themselves are owned by the shared pool and outlive the session.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		if s.sub != nil {
			s.sub.Close()
		}
	})
	return nil
}

func tagsToJSON(tags api.Tags) string {
	out := "["
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += "["
		for j, v := range t {
			if j > 0 {
				out += ","
			}
			out += fmt.Sprintf("%q", v)
		}
		out += "]"
	}
	return out + "]"
}

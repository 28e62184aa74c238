package remotesigner

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/event"
	"github.com/nsyte-dev/nsyte/pkg/relay"
	"github.com/nsyte-dev/nsyte/pkg/signer"
)

// wireEvent mirrors the JSON-over-the-wire event shape pkg/relay uses;
// duplicated here since that type is unexported in its own package.
type wireEvent struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

func toWire(ev api.Event) wireEvent {
	tags := make([][]string, len(ev.Tags))
	for i, t := range ev.Tags {
		tags[i] = []string(t)
	}
	return wireEvent{ev.ID, ev.PubKey, ev.CreatedAt, int(ev.Kind), tags, ev.Content, ev.Sig}
}

// broadcastRelay is a minimal in-memory relay: it answers EVENT with OK
// and forwards every event to any subscriber whose filter matches on
// kind and "#p" tag value, letting two sessions reach each other without
// a real network.
type broadcastRelay struct {
	mu      sync.Mutex
	clients []*relayClient
}

type relayClient struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	subID   string
	kinds   map[int]bool
	pValues map[string]bool
}

func newBroadcastRelay(t *testing.T) *httptest.Server {
	t.Helper()
	br := &broadcastRelay{}
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		rc := &relayClient{ws: ws, kinds: map[int]bool{}, pValues: map[string]bool{}}
		br.mu.Lock()
		br.clients = append(br.clients, rc)
		br.mu.Unlock()
		defer ws.Close()

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			if json.Unmarshal(raw, &frame) != nil || len(frame) == 0 {
				continue
			}
			var label string
			_ = json.Unmarshal(frame[0], &label)
			switch label {
			case "REQ":
				var subID string
				_ = json.Unmarshal(frame[1], &subID)
				rc.subID = subID
				if len(frame) > 2 {
					var filter map[string]json.RawMessage
					_ = json.Unmarshal(frame[2], &filter)
					if kindsRaw, ok := filter["kinds"]; ok {
						var kinds []int
						_ = json.Unmarshal(kindsRaw, &kinds)
						for _, k := range kinds {
							rc.kinds[k] = true
						}
					}
					if pRaw, ok := filter["#p"]; ok {
						var ps []string
						_ = json.Unmarshal(pRaw, &ps)
						for _, p := range ps {
							rc.pValues[p] = true
						}
					}
				}
				eose, _ := json.Marshal([]any{"EOSE", subID})
				rc.writeMu.Lock()
				_ = ws.WriteMessage(websocket.TextMessage, eose)
				rc.writeMu.Unlock()
			case "EVENT":
				var w2 wireEvent
				_ = json.Unmarshal(frame[1], &w2)
				ok, _ := json.Marshal([]any{"OK", w2.ID, true, ""})
				rc.writeMu.Lock()
				_ = ws.WriteMessage(websocket.TextMessage, ok)
				rc.writeMu.Unlock()
				br.broadcast(w2)
			}
		}
	}))
}

func (br *broadcastRelay) broadcast(w wireEvent) {
	br.mu.Lock()
	defer br.mu.Unlock()
	pTagValue := ""
	for _, t := range w.Tags {
		if len(t) >= 2 && t[0] == "p" {
			pTagValue = t[1]
		}
	}
	for _, c := range br.clients {
		if !c.kinds[w.Kind] {
			continue
		}
		if len(c.pValues) > 0 && !c.pValues[pTagValue] {
			continue
		}
		msg, _ := json.Marshal([]any{"EVENT", c.subID, w})
		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.TextMessage, msg)
		c.writeMu.Unlock()
	}
}

func relayWSURL(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	return u.String()
}

// remotePeer stands in for a remote-signer application: it owns its own
// key pair, answers the handshake's connect request, and answers every
// subsequent sign_event request by signing with that same key.
type remotePeer struct {
	priv   *secp256k1.PrivateKey
	pubHex string
}

type testNonceSource struct{}

func (testNonceSource) Read(p []byte) (int, error) { return rand.Read(p) }

func newRemotePeer(t *testing.T) *remotePeer {
	t.Helper()
	var raw [32]byte
	_, err := rand.Read(raw[:])
	require.NoError(t, err)
	priv := secp256k1.PrivKeyFromBytes(raw[:])
	xOnly := priv.PubKey().SerializeCompressed()[1:]
	return &remotePeer{priv: priv, pubHex: hex.EncodeToString(xOnly)}
}

func (rp *remotePeer) signEvent(draft api.EventDraft) (api.Event, error) {
	id := event.ID(rp.pubHex, draft.CreatedAt, draft.Kind, draft.Tags, draft.Content)
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return api.Event{}, err
	}
	sig, err := schnorr.Sign(rp.priv, idBytes, schnorr.CustomNonceSource(testNonceSource{}))
	if err != nil {
		return api.Event{}, err
	}
	return api.Event{ID: id, PubKey: rp.pubHex, CreatedAt: draft.CreatedAt, Kind: draft.Kind, Tags: draft.Tags, Content: draft.Content, Sig: hex.EncodeToString(sig.Serialize())}, nil
}

// listen starts answering handshake/request events addressed to this peer
// until ctx is cancelled.
func (rp *remotePeer) listen(ctx context.Context, t *testing.T, pool *relay.Pool, relays []string) {
	t.Helper()
	sub, err := pool.Subscribe(ctx, relays, []relay.Filter{{
		Kinds: []int{int(api.KindRemoteSigner)},
		Tags:  map[string][]string{"p": {rp.pubHex}},
	}})
	require.NoError(t, err)
	go func() {
		defer sub.Close()
		for {
			select {
			case msg, ok := <-sub.Out:
				if !ok {
					return
				}
				if msg.Kind != relay.InboundEvent {
					continue
				}
				rp.handle(ctx, pool, relays, msg.Event)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (rp *remotePeer) handle(ctx context.Context, pool *relay.Pool, relays []string, ev api.Event) {
	key, err := sharedSecret(rp.priv, ev.PubKey)
	if err != nil {
		return
	}
	plain, err := decrypt(key, ev.Content)
	if err != nil {
		return
	}
	req, err := decodeRequest(string(plain))
	if err != nil {
		return
	}

	var resp response
	switch req.Method {
	case "connect":
		resp = response{ID: req.ID, Result: "ack"}
	case "get_public_key":
		resp = response{ID: req.ID, Result: rp.pubHex}
	case "sign_event":
		ev2, err := decodeSignedEventJSON(req.Params[0])
		if err != nil {
			resp = response{ID: req.ID, Error: "bad params"}
			break
		}
		draft := api.EventDraft{CreatedAt: ev2.CreatedAt, Kind: ev2.Kind, Tags: ev2.Tags, Content: ev2.Content}
		signed, err := rp.signEvent(draft)
		if err != nil {
			resp = response{ID: req.ID, Error: err.Error()}
			break
		}
		signedRaw, _ := json.Marshal(toWire(signed))
		resp = response{ID: req.ID, Result: string(signedRaw)}
	default:
		resp = response{ID: req.ID, Error: "unknown method"}
	}

	raw, _ := encodeResponse(resp)
	content, err := encrypt(key, []byte(raw))
	if err != nil {
		return
	}
	draft := api.EventDraft{CreatedAt: time.Now().Unix(), Kind: api.KindRemoteSigner, Tags: api.Tags{{"p", ev.PubKey}}, Content: content}
	reply, err := rp.signEvent(draft)
	if err != nil {
		return
	}
	pool.Publish(ctx, relays, reply)
}

func TestBunkerHandshakeAndRequestSignatureEndToEnd(t *testing.T) {
	srv := newBroadcastRelay(t)
	defer srv.Close()
	relays := []string{relayWSURL(t, srv)}

	// Separate pools for each side: each pool keeps one connection per
	// relay URL, so sharing a pool between both ends of the handshake
	// would multiplex them onto a single physical connection and the
	// fake relay above does not keep per-subscription routing state.
	peerPool := relay.NewPool()
	defer peerPool.CloseAll()
	clientPool := relay.NewPool()
	defer clientPool.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	rp := newRemotePeer(t)
	rp.listen(ctx, t, peerPool, relays)
	// Give the peer's subscription a moment to register with the relay
	// before the client's connect request is broadcast.
	time.Sleep(100 * time.Millisecond)

	bunkerURI := "bunker://" + rp.pubHex + "?relay=" + url.QueryEscape(relays[0]) + "&secret=s3cr3t"

	session, err := ConnectBunker(ctx, clientPool, bunkerURI)
	require.NoError(t, err)
	defer session.Close()
	require.Equal(t, rp.pubHex, session.RemotePublicKey())

	rs := signer.NewRemoteSigner(session)
	draft := api.EventDraft{CreatedAt: time.Now().Unix(), Kind: api.KindManifest, Tags: api.Tags{{"d", "/index.html"}, {"x", "hash"}}}
	ev, err := rs.SignEvent(ctx, draft)
	require.NoError(t, err)
	require.Equal(t, rp.pubHex, ev.PubKey)
}

// TestSessionSerializesConcurrentRequests drives several concurrent
// callers of session.call against a single session. The one-outstanding-
// request invariant means a caller that arrives while another is in
// flight must wait its turn and still succeed, not fail outright.
func TestSessionSerializesConcurrentRequests(t *testing.T) {
	srv := newBroadcastRelay(t)
	defer srv.Close()
	relays := []string{relayWSURL(t, srv)}

	peerPool := relay.NewPool()
	defer peerPool.CloseAll()
	clientPool := relay.NewPool()
	defer clientPool.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	rp := newRemotePeer(t)
	rp.listen(ctx, t, peerPool, relays)
	time.Sleep(100 * time.Millisecond)

	bunkerURI := "bunker://" + rp.pubHex + "?relay=" + url.QueryEscape(relays[0]) + "&secret=s3cr3t"
	session, err := ConnectBunker(ctx, clientPool, bunkerURI)
	require.NoError(t, err)
	defer session.Close()

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := session.call(ctx, "get_public_key", nil)
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoErrorf(t, err, "caller %d", i)
	}
}

// TestSessionCallRespectsCallerCancellation confirms a caller queued behind
// an outstanding request gives up with a classified Cancelled error if its
// own context is cancelled before its turn, rather than blocking forever.
func TestSessionCallRespectsCallerCancellation(t *testing.T) {
	srv := newBroadcastRelay(t)
	defer srv.Close()
	relays := []string{relayWSURL(t, srv)}

	peerPool := relay.NewPool()
	defer peerPool.CloseAll()
	clientPool := relay.NewPool()
	defer clientPool.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	rp := newRemotePeer(t)
	rp.listen(ctx, t, peerPool, relays)
	time.Sleep(100 * time.Millisecond)

	bunkerURI := "bunker://" + rp.pubHex + "?relay=" + url.QueryEscape(relays[0]) + "&secret=s3cr3t"
	session, err := ConnectBunker(ctx, clientPool, bunkerURI)
	require.NoError(t, err)
	defer session.Close()

	// Occupy callSem so the next call() blocks waiting for its turn.
	session.callSem <- struct{}{}
	defer func() { <-session.callSem }()

	queuedCtx, queuedCancel := context.WithCancel(ctx)
	queuedCancel()

	_, err = session.call(queuedCtx, "get_public_key", nil)
	require.Error(t, err)
	require.Equal(t, api.ErrKindCancelled, api.KindOf(err))
}

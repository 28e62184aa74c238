package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nsyte-dev/nsyte/pkg/api"
)

// fakeManifestRelay answers every REQ with one stored manifest event
// (mirroring pkg/relay's own test relay) followed by EOSE, and accepts
// any EVENT with OK=true.
func fakeManifestRelay(t *testing.T, pubkey string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer ws.Close()
		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var frame []json.RawMessage
			require.NoError(t, json.Unmarshal(raw, &frame))
			var label string
			require.NoError(t, json.Unmarshal(frame[0], &label))
			switch label {
			case "EVENT":
				var wireEv map[string]any
				require.NoError(t, json.Unmarshal(frame[1], &wireEv))
				id, _ := wireEv["id"].(string)
				ok, _ := json.Marshal([]any{"OK", id, true, ""})
				require.NoError(t, ws.WriteMessage(websocket.TextMessage, ok))
			case "REQ":
				var subID string
				require.NoError(t, json.Unmarshal(frame[1], &subID))
				wireEv := map[string]any{
					"id":         "manifest-event-1",
					"pubkey":     pubkey,
					"created_at": int64(1000),
					"kind":       int(api.KindManifest),
					"tags":       [][]string{{"d", "/index.html"}, {"x", "deadbeef"}, {"m", "text/html"}, {"size", "12"}},
					"content":    "",
					"sig":        "sig",
				}
				evMsg, _ := json.Marshal([]any{"EVENT", subID, wireEv})
				require.NoError(t, ws.WriteMessage(websocket.TextMessage, evMsg))
				eose, _ := json.Marshal([]any{"EOSE", subID})
				require.NoError(t, ws.WriteMessage(websocket.TextMessage, eose))
			}
		}
	}))
	return srv
}

func wsURLForTest(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	return u.String()
}

func TestAppListReturnsPublishedManifestEntries(t *testing.T) {
	projectRoot := setupAppEnv(t)
	ctx := context.Background()

	state, err := Init(ctx, projectRoot, InitOptions{
		Relays:      []string{"wss://placeholder"},
		BlobServers: []string{"https://blossom.example"},
	})
	require.NoError(t, err)

	a, err := Open(ctx, projectRoot)
	require.NoError(t, err)
	defer a.Close()

	srv := fakeManifestRelay(t, state.PubKey)
	defer srv.Close()
	a.State.Relays = []string{wsURLForTest(t, srv)}

	entries, err := a.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "/index.html", entries[0].Path)
	require.Equal(t, "deadbeef", entries[0].Hash)
	require.Equal(t, "text/html", entries[0].MimeType)
	require.Equal(t, int64(12), entries[0].Size)
}

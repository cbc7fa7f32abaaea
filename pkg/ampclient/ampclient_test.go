package ampclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host := u.Hostname()
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return New(host, port, "")
}

func TestGetVolume(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/systems/current/sources/current/soundControl/volume", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"volume": 42})
	})
	v, err := c.GetVolume(context.Background())
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestGetVolume_MissingKeyIsProtocolError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"unrelated": 1})
	})
	_, err := c.GetVolume(context.Background())
	require.Error(t, err)
}

func TestSetVolume_ClampsAndPosts(t *testing.T) {
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		json.NewDecoder(r.Body).Decode(&gotBody)
	})
	require.NoError(t, c.SetVolume(context.Background(), 250))
	require.Equal(t, float64(100), gotBody["volume"])
}

func TestGetMuted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"muteState": "Muted"})
	})
	muted, err := c.GetMuted(context.Background())
	require.NoError(t, err)
	require.True(t, muted)
}

func TestMuteToggle_UsesUnmuteWhenMuted(t *testing.T) {
	var posted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]interface{}{"muteState": "muted"})
			return
		}
		posted = r.URL.Path
	})
	require.NoError(t, c.MuteToggle(context.Background()))
	require.True(t, strings.HasSuffix(posted, "/unmute"))
}

func TestGetSystems_FallsBackOn404(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/systems":
			w.WriteHeader(http.StatusNotFound)
		case "/systems/current":
			json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})
	data, err := c.GetSystems(context.Background())
	require.NoError(t, err)
	require.Equal(t, true, data["ok"])
}

package session_test

import (
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/invite-chat/internal/model"
	"github.com/sakif/invite-chat/internal/repository/sqlite"
	"github.com/sakif/invite-chat/internal/session"
)

// newSessionServer exposes a handful of endpoints that drive the Manager so
// tests can observe state across real HTTP round trips with a cookie jar.
func newSessionServer(t *testing.T, m *session.Manager) (*httptest.Server, *http.Client) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		u := &model.User{ID: "u1", Username: r.URL.Query().Get("name"), IsAdmin: r.URL.Query().Get("admin") == "1"}
		if err := m.Login(r.Context(), u); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	mux.HandleFunc("/grant", func(w http.ResponseWriter, r *http.Request) {
		m.GrantChat(r.Context())
	})
	mux.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		m.SetLastLink(r.Context(), r.URL.Query().Get("v"))
	})
	mux.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		st := m.Load(r.Context())
		name := "-"
		if st.Identified() {
			name = st.User.Username
		}
		w.Header().Set("X-User", name)
		if st.CanChat {
			w.Header().Set("X-Can-Chat", "1")
		}
		w.Header().Set("X-Last-Link", st.LastLink)
	})

	srv := httptest.NewServer(m.LoadAndSave(mux))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &http.Client{Jar: jar}
}

func get(t *testing.T, c *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := c.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestManager_AnonymousStateIsEmpty(t *testing.T) {
	srv, c := newSessionServer(t, session.NewMemory(session.DefaultOptions()))

	resp := get(t, c, srv.URL+"/state")
	assert.Equal(t, "-", resp.Header.Get("X-User"))
	assert.Empty(t, resp.Header.Get("X-Can-Chat"))
	assert.Empty(t, resp.Header.Get("X-Last-Link"))
}

func TestManager_LoginStoresSnapshot(t *testing.T) {
	srv, c := newSessionServer(t, session.NewMemory(session.DefaultOptions()))

	get(t, c, srv.URL+"/login?name=alice&admin=1")
	resp := get(t, c, srv.URL+"/state")
	assert.Equal(t, "alice", resp.Header.Get("X-User"))
}

func TestManager_GrantSurvivesLogin(t *testing.T) {
	srv, c := newSessionServer(t, session.NewMemory(session.DefaultOptions()))

	// Invite redeemed before identifying, as in the /join → / → /login flow.
	get(t, c, srv.URL+"/grant")
	get(t, c, srv.URL+"/login?name=bob")

	resp := get(t, c, srv.URL+"/state")
	assert.Equal(t, "bob", resp.Header.Get("X-User"))
	assert.Equal(t, "1", resp.Header.Get("X-Can-Chat"))
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := session.NewMemory(session.DefaultOptions())
	srv, alice := newSessionServer(t, m)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	bob := &http.Client{Jar: jar}

	get(t, alice, srv.URL+"/login?name=alice")
	get(t, alice, srv.URL+"/grant")
	get(t, alice, srv.URL+"/link?v=http://x/join/abcd1234")

	resp := get(t, bob, srv.URL+"/state")
	assert.Equal(t, "-", resp.Header.Get("X-User"))
	assert.Empty(t, resp.Header.Get("X-Can-Chat"))
	assert.Empty(t, resp.Header.Get("X-Last-Link"))
}

func TestManager_LastLinkOverwritten(t *testing.T) {
	srv, c := newSessionServer(t, session.NewMemory(session.DefaultOptions()))

	get(t, c, srv.URL+"/link?v=first")
	get(t, c, srv.URL+"/link?v=second")

	resp := get(t, c, srv.URL+"/state")
	assert.Equal(t, "second", resp.Header.Get("X-Last-Link"))
}

func TestManager_SQLiteStore(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts := session.DefaultOptions()
	opts.CleanupInterval = 0
	m := session.New(db.Conn(), opts)
	t.Cleanup(m.Close)

	srv, c := newSessionServer(t, m)
	get(t, c, srv.URL+"/login?name=carol")
	get(t, c, srv.URL+"/grant")

	resp := get(t, c, srv.URL+"/state")
	assert.Equal(t, "carol", resp.Header.Get("X-User"))
	assert.Equal(t, "1", resp.Header.Get("X-Can-Chat"))
}

func TestNew_CookieSettings(t *testing.T) {
	dev := session.NewMemory(session.DefaultOptions())
	assert.Equal(t, "session", dev.CookieName())

	opts := session.DefaultOptions()
	opts.Secure = true
	opts.IdleTimeout = time.Hour
	prod := session.NewMemory(opts)
	assert.Equal(t, "__Host-session", prod.CookieName())
}

package puzzle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/poohvpn/puzzle/gqlws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type puzzleServer struct {
	*httptest.Server
	requests atomic.Int32
	cookies  chan string
}

// newPuzzleServer serves the login mutation, the projects query and subscriptions
// that send one event per subscription and complete.
func newPuzzleServer(t *testing.T) *puzzleServer {
	t.Helper()
	ps := &puzzleServer{cookies: make(chan string, 4)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/graphql", func(w http.ResponseWriter, r *http.Request) {
		ps.requests.Add(1)
		req := Request{}
		b, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(b, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		switch req.OperationName {
		case "Login":
			if req.Variables["password"] != "secret" {
				http.Error(w, `{"detail":"invalid credentials"}`, http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s3ss10n", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "csrf", Value: "t0k3n", Path: "/"})
			_, _ = io.WriteString(w, `{"data":{"login":true}}`)
		case "GetProjects":
			if _, err := r.Cookie("session"); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"data":{"projects":[
				{"id":"1","title":"open","doneAt":null},
				{"id":"2","title":"done","doneAt":"2024-01-01T00:00:00Z"}
			]}}`)
		default:
			_, _ = io.WriteString(w, `{"errors":[{"message":"unknown operation"}]}`)
		}
	})
	mux.Handle("/api/graphql/ws", wsHandler(func(conn *websocket.Conn, r *http.Request) {
		ps.cookies <- r.Header.Get("Cookie")
		id, payload := acceptSubscription(t, conn)
		_ = sendNext(conn, id, map[string]string{"operation": payload.OperationName})
		_ = conn.WriteJSON(gqlws.Message{Type: gqlws.MsgTypeComplete, ID: id})
		drainUntilClosed(conn)
	}))
	ps.Server = httptest.NewServer(mux)
	t.Cleanup(ps.Close)
	return ps
}

func (ps *puzzleServer) endpoint() string {
	return ps.URL + "/api/graphql"
}

func TestDeriveWebSocketURL(t *testing.T) {
	as := assert.New(t)
	as.Equal("ws://host/api/graphql/ws", DeriveWebSocketURL("http://host/api/graphql"))
	as.Equal("wss://host:8443/api/graphql/ws", DeriveWebSocketURL("https://host:8443/api/graphql"))
	as.Equal("ws://host/graphql", DeriveWebSocketURL("http://host/graphql"))
}

func TestNewSession(t *testing.T) {
	as := assert.New(t)
	s, err := NewSession("http://puzzle.test/api/graphql")
	require.NoError(t, err)
	as.Equal("ws://puzzle.test/api/graphql/ws", s.WSEndpoint())
	as.Empty(s.Cookies())
	as.Equal("", s.CookieHeader())

	s, err = NewSession("http://puzzle.test/api/graphql", &SessionOption{WSURL: "ws://other/ws"})
	require.NoError(t, err)
	as.Equal("ws://other/ws", s.WSEndpoint())

	_, err = NewSession("puzzle.test/api/graphql")
	as.Error(err)

	_, err = NewSession("http://puzzle.test/api/graphql", &SessionOption{WSURL: "ftp://other/ws"})
	as.ErrorContains(err, "scheme must be ws or wss")
}

func TestCookieHeaderFormat(t *testing.T) {
	as := assert.New(t)
	s, err := NewSession("http://puzzle.test/api/graphql")
	require.NoError(t, err)
	s.jar.SetCookies(s.endpoint, []*http.Cookie{
		{Name: "a", Value: "1"},
		{Name: "b", Value: "2"},
	})
	as.Equal("a=1; b=2", s.CookieHeader())
}

func TestLoginMissingCredentials(t *testing.T) {
	as := assert.New(t)
	ps := newPuzzleServer(t)
	s, err := NewSession(ps.endpoint())
	require.NoError(t, err)

	ok, err := s.Login(context.Background(), LoginInput{Username: "alice"})
	as.False(ok)
	as.ErrorIs(err, ErrMissingCredentials)

	ok, err = s.Login(context.Background(), LoginInput{Password: "secret"})
	as.False(ok)
	as.ErrorIs(err, ErrMissingCredentials)

	as.Zero(ps.requests.Load())
	as.Empty(s.Cookies())
}

func TestLoginHTTPFailure(t *testing.T) {
	as := assert.New(t)
	ps := newPuzzleServer(t)
	s, err := NewSession(ps.endpoint())
	require.NoError(t, err)

	ok, err := s.Login(context.Background(), LoginInput{Username: "alice", Password: "wrong"})
	as.False(ok)
	httpErr := &HTTPError{}
	if as.ErrorAs(err, &httpErr) {
		as.Equal(http.StatusUnauthorized, httpErr.Response.StatusCode)
		as.Contains(httpErr.SavedBody, "invalid credentials")
	}
	as.Empty(s.Cookies())
}

func TestLoginForwardsCookiesToSubscriptions(t *testing.T) {
	as := assert.New(t)
	ps := newPuzzleServer(t)
	s, err := NewSession(ps.endpoint())
	require.NoError(t, err)

	ok, err := s.Login(context.Background(), LoginInput{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	as.True(ok)
	as.Len(s.Cookies(), 2)
	header := s.CookieHeader()
	as.Equal("session=s3ss10n; csrf=t0k3n", header)

	projects, err := s.GetProjects(context.Background())
	require.NoError(t, err)
	as.Len(projects, 2)
	active := ActiveProjects(projects)
	if as.Len(active, 1) {
		as.Equal("open", active[0].Title)
	}

	for _, subscribe := range []func(context.Context, ...SubscribeOption) (*Subscription, error){
		s.OnProjectsUpdated,
		s.OnProductsUpdated,
	} {
		sub, err := subscribe(context.Background())
		require.NoError(t, err)
		as.Len(collect(t, sub), 1)
		as.NoError(sub.Err())
		as.Equal(header, <-ps.cookies)
	}
}

func TestSubscriptionForwardsWebSocketPathCookies(t *testing.T) {
	as := assert.New(t)
	cookies := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/graphql", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "wsauth", Value: "w", Path: "/api/graphql/ws"})
		_, _ = io.WriteString(w, `{"data":{"login":true}}`)
	})
	mux.Handle("/api/graphql/ws", wsHandler(func(conn *websocket.Conn, r *http.Request) {
		cookies <- r.Header.Get("Cookie")
		id, _ := acceptSubscription(t, conn)
		_ = conn.WriteJSON(gqlws.Message{Type: gqlws.MsgTypeComplete, ID: id})
		drainUntilClosed(conn)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s, err := NewSession(srv.URL + "/api/graphql")
	require.NoError(t, err)
	ok, err := s.Login(context.Background(), LoginInput{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.True(t, ok)
	as.Equal("wsauth=w; session=s", s.CookieHeader())

	sub, err := s.OnProductsUpdated(context.Background())
	require.NoError(t, err)
	collect(t, sub)
	header := <-cookies
	as.Contains(header, "session=s")
	as.Contains(header, "wsauth=w")
}

func TestCookiesStayOnTheirHost(t *testing.T) {
	as := assert.New(t)
	s, err := NewSession("http://puzzle.test/api/graphql", &SessionOption{WSURL: "wss://events.other.test/ws"})
	require.NoError(t, err)
	s.jar.SetCookies(s.endpoint, []*http.Cookie{{Name: "session", Value: "s"}})
	as.Empty(s.CookieHeader())

	s, err = NewSession("http://puzzle.test/api/graphql", &SessionOption{WSURL: "ws://puzzle.test/events"})
	require.NoError(t, err)
	s.jar.SetCookies(s.endpoint, []*http.Cookie{{Name: "session", Value: "s"}})
	as.Equal("session=s", s.CookieHeader())
}

func TestTruthy(t *testing.T) {
	as := assert.New(t)
	as.True(truthy(json.RawMessage(`true`)))
	as.True(truthy(json.RawMessage(`{"id":"u1"}`)))
	as.False(truthy(json.RawMessage(`false`)))
	as.False(truthy(json.RawMessage(`null`)))
	as.False(truthy(nil))
}

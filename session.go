package puzzle

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// Session is an HTTP GraphQL client with a cookie jar plus a WebSocket client that forwards
// the jar's cookies on every subscription handshake.
type Session struct {
	*Client

	ws       *WSClient
	endpoint *url.URL
	// wsCookieURL is the WebSocket endpoint with an http(s) scheme, the jar only matches those
	wsCookieURL *url.URL
	jar         http.CookieJar
}

// DeriveWebSocketURL turns the HTTP GraphQL endpoint into its WebSocket counterpart:
// http://host/api/graphql becomes ws://host/api/graphql/ws.
func DeriveWebSocketURL(endpoint string) string {
	ws := strings.Replace(endpoint, "http", "ws", 1)
	return strings.Replace(ws, "/api/graphql", "/api/graphql/ws", 1)
}

// NewSession only take the first SessionOption if given
func NewSession(endpoint string, opt ...*SessionOption) (*Session, error) {
	o := &SessionOption{}
	if len(opt) > 0 && opt[0] != nil {
		o = opt[0]
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{}
	if o.HTTPClient != nil {
		c := *o.HTTPClient
		httpClient = &c
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, errors.Wrap(err, "new cookie jar")
		}
		httpClient.Jar = jar
	}

	s := &Session{
		Client: NewClient(endpoint, &Option{
			HTTPClient: httpClient,
			Headers:    o.Headers,
			Logger:     logger,
		}),
		endpoint: u,
		jar:      httpClient.Jar,
	}
	wsURL := o.WSURL
	if wsURL == "" {
		wsURL = DeriveWebSocketURL(endpoint)
	}
	if s.wsCookieURL, err = cookieURL(wsURL); err != nil {
		return nil, err
	}
	s.ws = NewWSClient(wsURL, WSOption{
		Dialer:                o.WSDialer,
		Headers:               o.Headers,
		Origin:                o.WSOrigin,
		ConnectionInitPayload: o.WSConnectionInitPayload,
		Cookies:               s.CookieHeader,
		Logger:                logger,
	})
	return s, nil
}

// WSEndpoint is the URL subscriptions connect to.
func (s *Session) WSEndpoint() string {
	return s.ws.Endpoint()
}

// cookieURL maps a ws:// or wss:// URL to the http(s) URL cookies are stored under.
func cookieURL(wsURL string) (*url.URL, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse websocket endpoint")
	}
	c := *u
	switch u.Scheme {
	case "ws":
		c.Scheme = "http"
	case "wss":
		c.Scheme = "https"
	case "http", "https":
	default:
		return nil, errors.Errorf("websocket endpoint %q: scheme must be ws or wss", wsURL)
	}
	return &c, nil
}

// Cookies returns the cookies forwarded on subscription handshakes: the ones the jar would
// send to the WebSocket endpoint, followed by API endpoint cookies of other names when both
// endpoints share a host.
func (s *Session) Cookies() []*http.Cookie {
	cookies := s.jar.Cookies(s.wsCookieURL)
	if s.wsCookieURL.Host != s.endpoint.Host {
		return cookies
	}
	seen := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		seen[c.Name] = true
	}
	for _, c := range s.jar.Cookies(s.endpoint) {
		if !seen[c.Name] {
			seen[c.Name] = true
			cookies = append(cookies, c)
		}
	}
	return cookies
}

// CookieHeader formats Cookies as a Cookie header value, "a=1; b=2", in jar order.
func (s *Session) CookieHeader() string {
	return formatCookies(s.Cookies())
}

func formatCookies(cookies []*http.Cookie) string {
	var b strings.Builder
	for _, c := range cookies {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

// Query runs a query or mutation over HTTP with the session cookies.
func (s *Session) Query(ctx context.Context, res interface{}, req Request) error {
	return s.Do(ctx, res, req)
}

// Subscribe opens a subscription authenticated with the cookies present right now.
func (s *Session) Subscribe(ctx context.Context, req Request, opts ...SubscribeOption) (*Subscription, error) {
	return s.ws.Subscribe(ctx, req, opts...)
}

// LoginInput holds the credentials of the login mutation, DomainName may be empty.
type LoginInput struct {
	DomainName string
	Username   string
	Password   string
}

// Login sends the login mutation. The server's session cookie is stored by the HTTP client's jar.
func (s *Session) Login(ctx context.Context, in LoginInput) (bool, error) {
	if in.Username == "" || in.Password == "" {
		return false, ErrMissingCredentials
	}
	var domain interface{}
	if in.DomainName != "" {
		domain = in.DomainName
	}
	data := struct {
		Login json.RawMessage `json:"login"`
	}{}
	err := s.Do(ctx, &data, Request{
		Query:         LoginMutation,
		OperationName: "Login",
		Variables: map[string]interface{}{
			"domainName": domain,
			"username":   in.Username,
			"password":   in.Password,
		},
	})
	if err != nil {
		return false, err
	}
	return truthy(data.Login), nil
}

func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

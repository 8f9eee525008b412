package puzzle

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Option be changed at anytime after NewClient
type Option struct {
	// Endpoint means server URL
	Endpoint string

	// HTTPClient specify http client, when it's nil, GraphQL client will use http.DefaultClient
	// HTTPClient should not change to nil after init
	HTTPClient *http.Client

	// Headers appended to http request every time at the beginning
	Headers map[string]string

	// CloseBody will close http request body immediately for reusing of http client
	CloseBody bool

	// Client will add Header "Authorization: Bearer <Token>" for every request when BearerAuth is not empty
	BearerAuth string

	// Logger receives request and response dumps at debug level, nil means no logging
	Logger *zap.Logger

	// NotCheckHTTPStatusCode200 disable http response status code for some irregular GraphQL Servers
	NotCheckHTTPStatusCode200 bool
}

type Client struct {
	*Option
}

type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables"`
}

// WSOption configures a WSClient. Every Subscribe call reads it again.
type WSOption struct {
	// Dialer used to open connections, websocket.DefaultDialer when nil.
	// Subprotocols of the dialer are replaced by graphql-transport-ws.
	Dialer *websocket.Dialer

	// Headers sent with every handshake, overridden by the cookie header and by WithHeader
	Headers map[string]string

	// Origin sets the Origin handshake header when not empty
	Origin string

	// ConnectionInitPayload is sent as payload of connection_init
	ConnectionInitPayload map[string]interface{}

	// Cookies returns the value of the Cookie handshake header, it is called once per Subscribe
	Cookies func() string

	// BufferSize of the Messages channel
	BufferSize int

	Logger *zap.Logger
}

// SessionOption configures a Session.
type SessionOption struct {
	// HTTPClient used for queries and mutations. A cookie jar is attached when it has none.
	HTTPClient *http.Client

	// Headers sent with every HTTP request and WebSocket handshake
	Headers map[string]string

	// WSURL overrides the WebSocket endpoint derived from the HTTP endpoint
	WSURL string

	// WSOrigin sets the Origin header of WebSocket handshakes
	WSOrigin string

	// WSConnectionInitPayload is sent with connection_init
	WSConnectionInitPayload map[string]interface{}

	// WSDialer used to open WebSocket connections
	WSDialer *websocket.Dialer

	Logger *zap.Logger
}

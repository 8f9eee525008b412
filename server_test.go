package puzzle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/poohvpn/puzzle/gqlws"
	"github.com/stretchr/testify/assert"
)

// newWSServer starts a graphql-transport-ws server running handle for every connection.
func newWSServer(t *testing.T, handle func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(wsHandler(handle))
	t.Cleanup(srv.Close)
	return srv
}

func wsHandler(handle func(conn *websocket.Conn, r *http.Request)) http.Handler {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{gqlws.Protocol},
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn, r)
	})
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// acceptSubscription runs the server side of the handshake and returns the subscribe message.
func acceptSubscription(t *testing.T, conn *websocket.Conn) (id string, payload gqlws.SubscribePayload) {
	as := assert.New(t)
	msg := gqlws.ResponseMessage{}
	if !as.NoError(conn.ReadJSON(&msg)) {
		return
	}
	as.Equal(gqlws.MsgTypeConnectionInit, msg.Type)
	as.NoError(conn.WriteJSON(gqlws.Message{Type: gqlws.MsgTypeConnectionAck}))

	msg = gqlws.ResponseMessage{}
	if !as.NoError(conn.ReadJSON(&msg)) {
		return
	}
	as.Equal(gqlws.MsgTypeSubscribe, msg.Type)
	as.NotEmpty(msg.ID)
	as.NoError(json.Unmarshal(msg.Payload, &payload))
	return msg.ID, payload
}

func sendNext(conn *websocket.Conn, id string, data interface{}) error {
	return conn.WriteJSON(gqlws.Message{
		Type:    gqlws.MsgTypeNext,
		ID:      id,
		Payload: map[string]interface{}{"data": data},
	})
}

func closeNormal(conn *websocket.Conn) error {
	return conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drainUntilClosed reads until the client goes away.
func drainUntilClosed(conn *websocket.Conn) []gqlws.ResponseMessage {
	var msgs []gqlws.ResponseMessage
	for {
		msg := gqlws.ResponseMessage{}
		if err := conn.ReadJSON(&msg); err != nil {
			return msgs
		}
		msgs = append(msgs, msg)
	}
}

package puzzle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/poohvpn/puzzle/gqlws"
	"go.uber.org/zap"
)

const closeWriteTimeout = time.Second

// WSClient opens one graphql-transport-ws connection per subscription.
type WSClient struct {
	*WSOption

	endpoint string
}

// NewWSClient only take the first WSOption if given
func NewWSClient(endpoint string, opt ...WSOption) *WSClient {
	client := &WSClient{
		WSOption: &WSOption{},
	}
	if len(opt) > 0 {
		client.WSOption = &opt[0]
	}
	client.endpoint = endpoint
	if client.Dialer == nil {
		client.Dialer = websocket.DefaultDialer
	}
	if client.Logger == nil {
		client.Logger = zap.NewNop()
	}
	if client.BufferSize < 0 {
		client.BufferSize = 0
	}
	return client
}

// Endpoint returns the WebSocket URL subscriptions connect to.
func (c *WSClient) Endpoint() string {
	return c.endpoint
}

type subscribeOptions struct {
	headers map[string]string
}

// SubscribeOption customizes a single Subscribe call.
type SubscribeOption func(*subscribeOptions)

// WithHeader sets a handshake header, it wins over default and cookie headers.
func WithHeader(key, value string) SubscribeOption {
	return func(o *subscribeOptions) {
		if o.headers == nil {
			o.headers = make(map[string]string)
		}
		o.headers[key] = value
	}
}

// WithHeaders is WithHeader for every entry of headers.
func WithHeaders(headers map[string]string) SubscribeOption {
	return func(o *subscribeOptions) {
		for k, v := range headers {
			WithHeader(k, v)(o)
		}
	}
}

// handshakeHeader merges default headers, origin, the cookie snapshot and caller overrides, in that order.
func (c *WSClient) handshakeHeader(overrides map[string]string) http.Header {
	header := make(http.Header)
	for k, v := range c.Headers {
		header.Set(k, v)
	}
	if c.Origin != "" {
		header.Set("Origin", c.Origin)
	}
	if c.Cookies != nil {
		if cookie := c.Cookies(); cookie != "" {
			header.Set("Cookie", cookie)
		}
	}
	for k, v := range overrides {
		header.Set(k, v)
	}
	return header
}

// Subscribe dials the endpoint, completes the connection_init/connection_ack handshake and
// sends a subscribe message. Data payloads are delivered on the Messages channel until the
// server completes the operation, the connection drops, ctx is cancelled or Close is called.
func (c *WSClient) Subscribe(ctx context.Context, req Request, opts ...SubscribeOption) (*Subscription, error) {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if req.Query == "" {
		return nil, errors.New("graphql query required")
	}

	dialer := *c.Dialer
	dialer.Subprotocols = []string{gqlws.Protocol}

	sub := &Subscription{
		id:       uuid.NewString(),
		logger:   c.Logger,
		messages: make(chan json.RawMessage, c.BufferSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	sub.status.Store(int32(gqlws.StatusConnecting))

	conn, httpResp, err := dialer.DialContext(ctx, c.endpoint, c.handshakeHeader(o.headers))
	if err != nil {
		sub.status.Store(int32(gqlws.StatusClosed))
		var savedBody []byte
		if httpResp != nil && httpResp.Body != nil {
			savedBody, _ = io.ReadAll(httpResp.Body)
			httpResp.Body.Close()
		}
		return nil, &DetailError{
			OriginError: errors.Wrap(err, "dial "+c.endpoint),
			Response:    httpResp,
			Content:     string(savedBody),
		}
	}
	sub.conn = conn
	sub.logger = c.Logger.With(zap.String("endpoint", c.endpoint), zap.String("id", sub.id))

	go sub.watch(ctx)

	if err := sub.handshake(c.ConnectionInitPayload, req); err != nil {
		sub.shutdown(err)
		sub.status.Store(int32(gqlws.StatusClosed))
		close(sub.done)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	sub.status.Store(int32(gqlws.StatusOpen))

	go sub.run()
	return sub, nil
}

// Subscription is a single graphql-transport-ws operation on its own connection.
type Subscription struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger
	status atomic.Int32

	messages chan json.RawMessage

	writeMutex sync.Mutex

	closeOnce   sync.Once
	closing     chan struct{}
	closeReason error

	done chan struct{}
	err  error
}

// ID is the operation identifier sent with the subscribe message.
func (s *Subscription) ID() string {
	return s.id
}

// Messages yields the data member of every next message in arrival order.
// The channel is closed when the subscription ends, Err reports why.
func (s *Subscription) Messages() <-chan json.RawMessage {
	return s.messages
}

// Err returns nil while the subscription is running and after a clean end.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Done is closed after the Messages channel is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Status reports the connection state, it is StatusClosed once Done is closed.
func (s *Subscription) Status() gqlws.Status {
	return gqlws.Status(s.status.Load())
}

// Close completes the operation and closes the connection, it waits for the reader to stop.
func (s *Subscription) Close() error {
	s.shutdown(nil)
	<-s.done
	return nil
}

func (s *Subscription) watch(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.shutdown(ctx.Err())
	case <-s.done:
	}
}

func (s *Subscription) shutdown(reason error) {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		close(s.closing)
		if s.Status() == gqlws.StatusOpen {
			s.writeMutex.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
			s.writeMutex.Unlock()
			_ = s.send(gqlws.MsgTypeComplete, s.id, nil)
		}
		_ = s.conn.Close()
	})
}

func (s *Subscription) handshake(initPayload map[string]interface{}, req Request) error {
	var payload interface{}
	if len(initPayload) > 0 {
		payload = initPayload
	}
	if err := s.send(gqlws.MsgTypeConnectionInit, "", payload); err != nil {
		return errors.Wrap(err, "send connection_init")
	}

	msg := gqlws.ResponseMessage{}
	if err := s.conn.ReadJSON(&msg); err != nil {
		return errors.Wrap(err, "read connection_ack")
	}
	s.logger.Debug("recv", zap.String("type", msg.Type), zap.ByteString("payload", msg.Payload))
	if msg.Type != gqlws.MsgTypeConnectionAck {
		return &UnexpectedMessageError{
			Expected: gqlws.MsgTypeConnectionAck,
			Got:      msg.Type,
			Payload:  string(msg.Payload),
		}
	}

	err := s.send(gqlws.MsgTypeSubscribe, s.id, &gqlws.SubscribePayload{
		Query:         req.Query,
		OperationName: req.OperationName,
		Variables:     req.Variables,
	})
	return errors.Wrap(err, "send subscribe")
}

func (s *Subscription) send(typ, id string, payload interface{}) error {
	j, err := json.Marshal(&gqlws.Message{
		Type:    typ,
		ID:      id,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	s.logger.Debug("send", zap.ByteString("message", j))
	return s.conn.WriteMessage(websocket.TextMessage, j)
}

func (s *Subscription) run() {
	defer func() {
		_ = s.conn.Close()
		s.status.Store(int32(gqlws.StatusClosed))
		close(s.messages)
		close(s.done)
	}()
	for {
		msg := gqlws.ResponseMessage{}
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.err = s.readError(err)
			return
		}
		s.logger.Debug("recv", zap.String("type", msg.Type), zap.ByteString("payload", msg.Payload))
		switch msg.Type {
		case gqlws.MsgTypeNext:
			if msg.ID != s.id {
				continue
			}
			resp := rawResponse{}
			if err := json.Unmarshal(msg.Payload, &resp); err != nil {
				s.err = &JSONError{OriginError: err, JSON: string(msg.Payload)}
				return
			}
			if len(resp.Errors) > 0 {
				s.err = GraphQLErrors(resp.Errors)
				return
			}
			if len(resp.Data) == 0 || string(resp.Data) == "null" {
				continue
			}
			select {
			case s.messages <- resp.Data:
			case <-s.closing:
				s.err = s.closeReason
				return
			}
		case gqlws.MsgTypeError:
			if msg.ID != s.id {
				continue
			}
			var errs GraphQLErrors
			if err := json.Unmarshal(msg.Payload, &errs); err != nil || len(errs) == 0 {
				errs = GraphQLErrors{{Message: string(msg.Payload)}}
			}
			s.err = errs
			return
		case gqlws.MsgTypeComplete:
			if msg.ID == s.id {
				return
			}
		case gqlws.MsgTypePing:
			if err := s.send(gqlws.MsgTypePong, "", nil); err != nil {
				s.err = s.readError(err)
				return
			}
		case gqlws.MsgTypePong, gqlws.MsgTypeConnectionAck:
		default:
			s.logger.Warn("unknown message type", zap.String("type", msg.Type))
		}
	}
}

func (s *Subscription) readError(err error) error {
	select {
	case <-s.closing:
		return s.closeReason
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil
	}
	return errors.Wrap(err, "read subscription message")
}

package puzzle

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// NewClient only take the first Option if given
func NewClient(endpoint string, opt ...*Option) *Client {
	client := &Client{
		Option: &Option{},
	}
	if len(opt) > 0 && opt[0] != nil {
		client.Option = opt[0]
	}
	if client.HTTPClient == nil {
		client.HTTPClient = http.DefaultClient
	}
	if client.Logger == nil {
		client.Logger = zap.NewNop()
	}
	client.Endpoint = endpoint
	return client
}

// Do sends one GraphQL operation and decodes the data member of the response into res.
func (c *Client) Do(ctx context.Context, res interface{}, request Request) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if request.Query == "" {
		return errors.New("graphql query required")
	}

	operationJson, err := json.Marshal(request)
	if err != nil {
		return errors.Wrap(err, "json encode graphql request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(operationJson))
	if err != nil {
		return errors.Wrap(err, "new http request")
	}

	// set http request options and headers
	httpReq.Close = c.CloseBody
	for k, v := range c.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Accept", "application/json; charset=utf-8")
	if c.BearerAuth != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.BearerAuth)
	}

	c.Logger.Debug("graphql request",
		zap.String("method", httpReq.Method),
		zap.Stringer("url", httpReq.URL),
		zap.String("operation", request.OperationName),
		zap.ByteString("body", operationJson),
	)
	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "graphql http request")
	}
	defer httpResp.Body.Close()

	savedBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return errors.Wrap(err, "read graphql response")
	}
	respJson := string(savedBody)
	c.Logger.Debug("graphql response",
		zap.String("operation", request.OperationName),
		zap.String("status", httpResp.Status),
		zap.String("body", respJson),
	)
	if !c.NotCheckHTTPStatusCode200 && httpResp.StatusCode != http.StatusOK {
		return &HTTPError{
			Response:  httpResp,
			SavedBody: respJson,
		}
	}

	resp := response{
		Data: res,
	}
	if err := json.Unmarshal(savedBody, &resp); err != nil {
		return &JSONError{
			OriginError: err,
			JSON:        respJson,
		}
	}
	if len(resp.Errors) > 0 {
		return GraphQLErrors(resp.Errors)
	}
	return nil
}

type response struct {
	Errors []GraphQLError `json:"errors,omitempty"`
	Data   interface{}    `json:"data,omitempty"`
}

type rawResponse struct {
	Errors []GraphQLError  `json:"errors,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

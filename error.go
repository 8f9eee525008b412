package puzzle

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrMissingCredentials is returned by Login before any request is sent.
var ErrMissingCredentials = errors.New("missing credentials")

type GraphQLErrors []GraphQLError

// Path element's type should be either string or int, according to the samples of http://spec.graphql.org/draft/#sec-Errors
type GraphQLError struct {
	Message    string                 `json:"message,omitempty"`
	Locations  []GraphQLErrorLocation `json:"locations,omitempty"`
	Path       []interface{}          `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

type GraphQLErrorLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// HTTPError is a response with an unexpected status code, SavedBody holds the raw response body.
type HTTPError struct {
	Response  *http.Response
	SavedBody string
}

type JSONError struct {
	OriginError error
	JSON        string
}

type DetailError struct {
	OriginError error
	Content     string
	Response    *http.Response
}

// UnexpectedMessageError is a handshake frame of another type than the expected one.
type UnexpectedMessageError struct {
	Expected string
	Got      string
	Payload  string
}

func jsonifyError(e interface{}) string {
	if e == nil {
		return "null"
	}
	j, err := json.Marshal(e)
	if err != nil {
		return err.Error()
	}
	return string(j)
}

func (e GraphQLErrors) Error() string {
	return jsonifyError(e)
}

func (e *GraphQLError) Error() string {
	return jsonifyError(e)
}

func (e *HTTPError) Error() string {
	if e == nil || e.Response == nil {
		return "<nil>"
	}
	return fmt.Sprintf("http status %s: %s", e.Response.Status, e.SavedBody)
}

func (e *JSONError) Error() string {
	if e == nil || e.OriginError == nil {
		return "<nil>"
	}
	return fmt.Sprintf("json decode response: %s: %s", e.OriginError, e.JSON)
}

func (e *JSONError) Unwrap() error {
	return e.OriginError
}

func (e *DetailError) Error() string {
	if e == nil || e.OriginError == nil {
		return "<nil>"
	}
	return e.OriginError.Error()
}

func (e *DetailError) Unwrap() error {
	return e.OriginError
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("expected %s message, got %q: %s", e.Expected, e.Got, e.Payload)
}

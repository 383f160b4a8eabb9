package wsstore

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/tonehq/tonesync/pkg/constants"
	"github.com/tonehq/tonesync/pkg/models"
)

// Subprotocol is negotiated during the WebSocket handshake.
const Subprotocol = "tonesync.cbor"

// RPC methods.
const (
	MethodAuthenticate = "authenticate"
	MethodCreate       = "create"
	MethodUpdate       = "update"
	MethodDelete       = "delete"
	MethodGet          = "get"
	MethodSubscribe    = "subscribe"
	MethodUnsubscribe  = "unsubscribe"
)

// Request is sent by the client. ID correlates the Response.
type Request struct {
	ID     string `cbor:"id"`
	Method string `cbor:"method"`
	Params Params `cbor:"params"`
}

type Params struct {
	Token        string          `cbor:"token,omitempty"`
	Collection   string          `cbor:"collection,omitempty"`
	ID           string          `cbor:"id,omitempty"`
	Fields       models.Document `cbor:"fields,omitempty"`
	OwnerID      string          `cbor:"owner,omitempty"`
	OrderBy      string          `cbor:"orderBy,omitempty"`
	Subscription string          `cbor:"sub,omitempty"`
}

// Response is sent by the server. A response without ID carries a
// subscription Notification.
type Response struct {
	ID           string        `cbor:"id,omitempty"`
	Error        *RPCError     `cbor:"error,omitempty"`
	Result       *Result       `cbor:"result,omitempty"`
	Notification *Notification `cbor:"notification,omitempty"`
}

type Result struct {
	Subscription string          `cbor:"sub,omitempty"`
	UserID       string          `cbor:"user,omitempty"`
	Doc          models.Document `cbor:"doc,omitempty"`
}

// Notification carries either a full snapshot or a read-path error.
type Notification struct {
	Subscription string            `cbor:"sub"`
	Docs         []models.Document `cbor:"docs,omitempty"`
	Error        *RPCError         `cbor:"error,omitempty"`
}

// Error codes. Each maps to one sentinel in constants.
const (
	CodeInternal         = -32603
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeNotAuthenticated = 401
	CodePermissionDenied = 403
	CodeNotFound         = 404
	CodeInvalidDocument  = 422
	CodeUnavailable      = 503
)

type RPCError struct {
	Code    int    `cbor:"code"`
	Message string `cbor:"message,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

// Unwrap maps the code back to its sentinel so callers can use errors.Is.
func (e *RPCError) Unwrap() error {
	switch e.Code {
	case CodeNotAuthenticated:
		return constants.ErrNotAuthenticated
	case CodePermissionDenied:
		return constants.ErrPermissionDenied
	case CodeNotFound:
		return constants.ErrNotFound
	case CodeInvalidDocument:
		return constants.ErrInvalidDocument
	default:
		return constants.ErrRemoteUnavailable
	}
}

// NewRPCError converts a store error into its wire form.
func NewRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	code := CodeInternal
	switch {
	case errors.Is(err, constants.ErrNotAuthenticated):
		code = CodeNotAuthenticated
	case errors.Is(err, constants.ErrPermissionDenied):
		code = CodePermissionDenied
	case errors.Is(err, constants.ErrNotFound):
		code = CodeNotFound
	case errors.Is(err, constants.ErrInvalidDocument), errors.Is(err, constants.ErrInvalidInput):
		code = CodeInvalidDocument
	case errors.Is(err, constants.ErrRemoteUnavailable):
		code = CodeUnavailable
	}
	return &RPCError{Code: code, Message: err.Error()}
}

// Codec encodes protocol messages. Timestamps travel as RFC 3339 strings
// under tag 0 and maps decode with string keys.
type Codec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCodec() *Codec {
	enc, err := cbor.EncOptions{
		Time:    cbor.TimeRFC3339Nano,
		TimeTag: cbor.EncTagRequired,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		TimeTag:        cbor.DecTagOptional,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return &Codec{enc: enc, dec: dec}
}

func (c *Codec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *Codec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}

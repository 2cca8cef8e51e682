package botdispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport performs one Bot API call. Implementations own the network
// (see package botapi); the dispatch core only shapes params and reads the
// returned envelope.
//
// A non-nil error means the call did not produce an envelope at all
// (network failure, undecodable body). A well-formed envelope with ok=false
// is not an error: it comes back as RawResult with OK unset.
type Transport interface {
	Call(ctx context.Context, method string, params Params) (RawResult, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, method string, params Params) (RawResult, error)

// Call implements Transport.
func (f TransportFunc) Call(ctx context.Context, method string, params Params) (RawResult, error) {
	return f(ctx, method, params)
}

// RawResult is the Bot API response envelope.
type RawResult struct {
	OK          bool
	Result      json.RawMessage
	ErrorCode   int
	Description string
	// RetryAfter is the flood-control delay in seconds, when reported.
	RetryAfter int
}

// APIError converts a failed envelope to an *APIError, or nil when OK.
func (r RawResult) APIError() *APIError {
	if r.OK {
		return nil
	}
	return &APIError{Code: r.ErrorCode, Description: r.Description, RetryAfter: r.RetryAfter}
}

// ParseRawResult reads a Bot API response body.
func ParseRawResult(body []byte) (RawResult, error) {
	v, err := JSONInspector().Inspect(body)
	if err != nil {
		return RawResult{}, err
	}
	ok, found := v.GetBool("ok")
	if !found {
		return RawResult{}, fmt.Errorf("parse result: missing ok field")
	}
	res := RawResult{OK: ok, Description: str(v, "description")}
	if raw, found := v.GetBytes("result"); found {
		res.Result = json.RawMessage(raw)
	}
	if code, found := v.GetInt("error_code"); found {
		res.ErrorCode = int(code)
	}
	if retry, found := v.GetInt("parameters.retry_after"); found {
		res.RetryAfter = int(retry)
	}
	return res, nil
}

// APIError is a failure reported by the remote API. The Executor returns
// it as data inside Result rather than as an error.
type APIError struct {
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Description)
}

package ledger

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned by a Backend when the durable write could not
// reach the external ledger network.  The ledger recovers from it locally:
// the record is still appended, just without a backend reference.
var ErrUnavailable = errors.New("ledger backend unavailable")

// Backend is the boundary to the external append-only ledger network.  The
// core never interprets backend-internal semantics beyond success/failure and
// the opaque reference string an Invoke returns.
type Backend interface {
	Invoke(ctx context.Context, function string, args []string) (string, error)
	Query(ctx context.Context, function string, args []string) (json.RawMessage, error)
}

// chaincodeRequest is the wire form of a backend call.  The mixed casing of
// the field names is what the chaincode side expects.
type chaincodeRequest struct {
	Function string   `json:"function"`
	Args     []string `json:"Args"`
}

// nopBackend is the default when no ledger network is configured: every call
// reports unavailable, so records carry empty references but appends proceed.
type nopBackend struct{}

func NewNopBackend() Backend {
	return nopBackend{}
}

func (nopBackend) Invoke(ctx context.Context, function string, args []string) (string, error) {
	return "", ErrUnavailable
}

func (nopBackend) Query(ctx context.Context, function string, args []string) (json.RawMessage, error) {
	return nil, ErrUnavailable
}

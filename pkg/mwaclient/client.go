// Package mwaclient implements the dapp-side MWA invoker: it validates
// inputs, encodes params, submits the call through an RpcEndpoint, and
// translates the wire response (or its absence) into the flat typed error
// enumeration described by §7.
package mwaclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mwaprotocol/mwa-go/pkg/jsonpack"
	"github.com/mwaprotocol/mwa-go/pkg/mwa"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
)

// Client invokes MWA methods against a wallet over an RpcEndpoint.
type Client struct {
	endpoint *mwarpc.RpcEndpoint
}

// New builds a Client bound to endpoint.
func New(endpoint *mwarpc.RpcEndpoint) *Client {
	return &Client{endpoint: endpoint}
}

// Declined is returned when the wallet user rejected the request.
var Declined = errors.New("mwaclient: declined")

// ReauthorizationRequired is returned when the presented auth token needs
// to be refreshed via a fresh authorize call.
var ReauthorizationRequired = errors.New("mwaclient: reauthorization required")

// AuthorizationFailed is returned when authorize itself was declined, or a
// signing call's auth token was rejected outright.
var AuthorizationFailed = errors.New("mwaclient: authorization failed")

// InvalidResponseError is returned when the wallet's reply does not match
// the shape the request implies (wrong vector length, malformed frame). It
// is distinct from RemoteError: the wallet replied, but the reply violated
// the protocol contract. The client methods also return it, without sending
// anything, when their own inputs fail validation.
type InvalidResponseError struct {
	Reason string
}

func (e *InvalidResponseError) Error() string { return "mwaclient: invalid response: " + e.Reason }

// InvalidPayloadError reports that one or more submitted payloads were
// rejected by the wallet.
type InvalidPayloadError struct {
	Valid []bool
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("mwaclient: invalid payload(s): %v", e.Valid)
}

// NotCommittedError reports that a signed transaction was not observed at
// the requested commitment level.
type NotCommittedError struct {
	Signatures [][]byte
	Commitment []bool
}

func (e *NotCommittedError) Error() string {
	return fmt.Sprintf("mwaclient: not committed: %v", e.Commitment)
}

// RemoteError passes through a wallet-side error this client does not have
// a typed mapping for.
type RemoteError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mwaclient: remote error %d: %s", e.Code, e.Message)
}

// TimeoutError is returned when no reply arrived before the call's deadline.
type TimeoutError struct{ Method string }

func (e *TimeoutError) Error() string { return "mwaclient: timeout calling " + e.Method }

// CancelledError is returned when the call was cancelled before completion.
type CancelledError struct{ Method string }

func (e *CancelledError) Error() string { return "mwaclient: cancelled calling " + e.Method }

// TransportError wraps any other transport-layer failure (send error,
// connection loss) the endpoint reported.
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return "mwaclient: transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// translateError maps an RpcEndpoint.Call error into the flat typed
// enumeration from §7.
func translateError(err error) error {
	var timeoutErr *mwarpc.ErrTimeout
	if errors.As(err, &timeoutErr) {
		return &TimeoutError{Method: timeoutErr.Method}
	}
	var cancelledErr *mwarpc.ErrCancelled
	if errors.As(err, &cancelledErr) {
		return &CancelledError{Method: cancelledErr.Method}
	}
	var remote *mwarpc.RemoteError
	if !errors.As(err, &remote) {
		return &TransportError{Err: err}
	}
	switch remote.Code {
	case mwa.CodeNotSigned:
		return Declined
	case mwa.CodeReauthorize:
		return ReauthorizationRequired
	case mwa.CodeAuthorizationFailed:
		return AuthorizationFailed
	case mwa.CodeInvalidPayload:
		var data struct {
			Valid []bool `json:"valid"`
		}
		if jsonErr := json.Unmarshal(remote.Data, &data); jsonErr != nil {
			return &InvalidResponseError{Reason: "malformed INVALID_PAYLOAD data: " + jsonErr.Error()}
		}
		return &InvalidPayloadError{Valid: data.Valid}
	case mwa.CodeNotCommitted:
		var data struct {
			Signatures []string `json:"signatures"`
			Commitment []bool   `json:"commitment"`
		}
		if jsonErr := json.Unmarshal(remote.Data, &data); jsonErr != nil {
			return &InvalidResponseError{Reason: "malformed NOT_COMMITTED data: " + jsonErr.Error()}
		}
		sigs, sigErr := jsonpack.UnpackBytes(data.Signatures)
		if sigErr != nil {
			return &InvalidResponseError{Reason: "malformed NOT_COMMITTED signatures: " + sigErr.Error()}
		}
		return &NotCommittedError{Signatures: sigs, Commitment: data.Commitment}
	default:
		return &RemoteError{Code: remote.Code, Message: remote.Message, Data: remote.Data}
	}
}

// Authorize requests authorization for the given identity and privileged
// methods.
func (c *Client) Authorize(ctx context.Context, identity *mwa.Identity, privileged []mwa.PrivilegedMethod) (*mwa.AuthorizeResult, error) {
	if len(privileged) == 0 {
		return nil, &InvalidResponseError{Reason: "privileged_methods must be non-empty"}
	}
	params := map[string]interface{}{"privileged_methods": privileged}
	if identity != nil {
		params["identity"] = identity
	}

	raw, err := c.endpoint.Call(ctx, mwa.MethodAuthorize, params)
	if err != nil {
		return nil, translateError(err)
	}
	var result mwa.AuthorizeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &InvalidResponseError{Reason: "malformed authorize result: " + err.Error()}
	}
	return &result, nil
}

// SignTransaction requests signatures over the given payloads, returning
// them signed in the same order.
func (c *Client) SignTransaction(ctx context.Context, authToken string, payloads [][]byte) ([][]byte, error) {
	return c.signPayload(ctx, mwa.MethodSignTransaction, authToken, payloads)
}

// SignMessage requests signatures over the given message payloads.
func (c *Client) SignMessage(ctx context.Context, authToken string, payloads [][]byte) ([][]byte, error) {
	return c.signPayload(ctx, mwa.MethodSignMessage, authToken, payloads)
}

func (c *Client) signPayload(ctx context.Context, method, authToken string, payloads [][]byte) ([][]byte, error) {
	if err := validateSignInputs(authToken, payloads); err != nil {
		return nil, err
	}
	params := map[string]interface{}{
		"auth_token": authToken,
		"payloads":   jsonpack.PackBytes(payloads),
	}
	raw, err := c.endpoint.Call(ctx, method, params)
	if err != nil {
		return nil, translateError(err)
	}
	var wire struct {
		SignedPayloads []string `json:"signed_payloads"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &InvalidResponseError{Reason: "malformed result: " + err.Error()}
	}
	if len(wire.SignedPayloads) != len(payloads) {
		return nil, &InvalidResponseError{Reason: "signed_payloads length mismatch"}
	}
	signed, err := jsonpack.UnpackBytes(wire.SignedPayloads)
	if err != nil {
		return nil, &InvalidResponseError{Reason: "malformed signed_payloads: " + err.Error()}
	}
	return signed, nil
}

// SignAndSendTransaction requests signing and submission of the given
// transaction payloads at the given commitment level, returning the
// resulting signatures.
func (c *Client) SignAndSendTransaction(ctx context.Context, authToken string, payloads [][]byte, commitment mwa.CommitmentLevel) ([][]byte, error) {
	if err := validateSignInputs(authToken, payloads); err != nil {
		return nil, err
	}
	if !commitment.IsKnown() {
		return nil, &InvalidResponseError{Reason: fmt.Sprintf("unknown commitment %q", commitment)}
	}
	params := map[string]interface{}{
		"auth_token": authToken,
		"payloads":   jsonpack.PackBytes(payloads),
		"commitment": commitment,
	}
	raw, err := c.endpoint.Call(ctx, mwa.MethodSignAndSendTransaction, params)
	if err != nil {
		return nil, translateError(err)
	}
	var wire struct {
		Signatures []string `json:"signatures"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &InvalidResponseError{Reason: "malformed result: " + err.Error()}
	}
	if len(wire.Signatures) != len(payloads) {
		return nil, &InvalidResponseError{Reason: "signatures length mismatch"}
	}
	sigs, err := jsonpack.UnpackBytes(wire.Signatures)
	if err != nil {
		return nil, &InvalidResponseError{Reason: "malformed signatures: " + err.Error()}
	}
	return sigs, nil
}

func validateSignInputs(authToken string, payloads [][]byte) error {
	if authToken == "" {
		return &InvalidResponseError{Reason: "auth_token must be non-empty"}
	}
	if len(payloads) == 0 {
		return &InvalidResponseError{Reason: "payloads must be non-empty"}
	}
	for i, p := range payloads {
		if len(p) == 0 {
			return &InvalidResponseError{Reason: fmt.Sprintf("payload %d must be non-empty", i)}
		}
	}
	return nil
}

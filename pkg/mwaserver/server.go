// Package mwaserver implements the wallet-side MWA dispatcher: it decodes
// each method's params, constructs the typed request object, hands it to an
// injected Handlers implementation, and translates the resulting verdict
// into the correct JSON-RPC reply.
package mwaserver

import (
	"context"
	"encoding/json"

	"github.com/mwaprotocol/mwa-go/internal/logging"
	"github.com/mwaprotocol/mwa-go/pkg/jsonpack"
	"github.com/mwaprotocol/mwa-go/pkg/jsonrpc"
	"github.com/mwaprotocol/mwa-go/pkg/mwa"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
)

// Handlers is the set of capabilities the dispatcher depends on. A wallet UI
// implements this; the dispatcher never inherits from or overrides wallet
// code, it only calls these methods (§9's "replace inheritance/overrides
// with a small set of handler capabilities").
type Handlers interface {
	// Authorize is handed a validated AuthorizeRequest and the future it
	// must resolve exactly once.
	Authorize(ctx context.Context, req *mwa.AuthorizeRequest, future *mwarpc.Future[mwa.AuthorizeResult])
	// SignPayload is handed a validated SignRequest for sign_transaction or
	// sign_message (method tells the handler which) and the future it must
	// resolve exactly once.
	SignPayload(ctx context.Context, method string, req *mwa.SignRequest, future *mwarpc.Future[mwa.SignResult])
	// SignAndSendTransaction is handed a validated
	// SignAndSendTransactionRequest and the future it must resolve exactly
	// once.
	SignAndSendTransaction(ctx context.Context, req *mwa.SignAndSendTransactionRequest, future *mwarpc.Future[mwa.SignAndSendTransactionResult])
}

// Server dispatches inbound RpcEndpoint calls to Handlers and translates
// verdicts back onto the wire per the mapping table in §4.5.
type Server struct {
	endpoint *mwarpc.RpcEndpoint
	handlers Handlers
	log      logging.Logger
}

// New builds a Server bound to endpoint and handlers, and installs it as
// the endpoint's dispatcher.
func New(endpoint *mwarpc.RpcEndpoint, handlers Handlers, log logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	s := &Server{endpoint: endpoint, handlers: handlers, log: log.Named("mwaserver")}
	endpoint.SetDispatcher(s.dispatch)
	return s
}

func (s *Server) dispatch(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
	s.log.Debug("processing request", "method", method, "id", string(id))

	var obj map[string]json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &obj); err != nil {
			s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, "params must be an object", nil)
			return
		}
	}

	switch method {
	case mwa.MethodAuthorize:
		s.dispatchAuthorize(ctx, id, params)
	case mwa.MethodSignTransaction, mwa.MethodSignMessage:
		s.dispatchSignPayload(ctx, id, method, params)
	case mwa.MethodSignAndSendTransaction:
		s.dispatchSignAndSendTransaction(ctx, id, params)
	case "ping":
		s.endpoint.ReplyOK(id, "pong")
	default:
		s.endpoint.ReplyErr(id, jsonrpc.CodeMethodNotFound, "unknown method "+method, nil)
	}
}

// wireAuthorizeRequest/wireSignRequest/wireSignAndSendTransactionRequest are
// the base64url-on-the-wire shapes; mwa.SignRequest etc. hold decoded bytes.

type wireIdentity struct {
	Uri  string `json:"uri,omitempty"`
	Icon string `json:"icon,omitempty"`
	Name string `json:"name,omitempty"`
}

type wireAuthorizeRequest struct {
	Identity          *wireIdentity `json:"identity,omitempty"`
	PrivilegedMethods []string      `json:"privileged_methods"`
}

type wireSignRequest struct {
	AuthToken string   `json:"auth_token"`
	Payloads  []string `json:"payloads"`
}

type wireSignAndSendTransactionRequest struct {
	wireSignRequest
	Commitment string `json:"commitment"`
}

func (s *Server) dispatchAuthorize(ctx context.Context, id json.RawMessage, params json.RawMessage) {
	var wire wireAuthorizeRequest
	if err := json.Unmarshal(params, &wire); err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, "malformed authorize params", nil)
		return
	}

	req := &mwa.AuthorizeRequest{PrivilegedMethods: make([]mwa.PrivilegedMethod, len(wire.PrivilegedMethods))}
	for i, m := range wire.PrivilegedMethods {
		req.PrivilegedMethods[i] = mwa.PrivilegedMethod(m)
	}
	if wire.Identity != nil {
		req.Identity = &mwa.Identity{Uri: wire.Identity.Uri, Icon: wire.Identity.Icon, Name: wire.Identity.Name}
	}

	if err := mwa.ValidateAuthorizeRequest(req); err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, err.Error(), nil)
		return
	}

	future := newServerFuture[mwa.AuthorizeResult](s, 0, func(f *mwarpc.Future[mwa.AuthorizeResult]) {
		s.replyAuthorize(id, f)
	})
	s.handlers.Authorize(ctx, req, future)
}

func (s *Server) dispatchSignPayload(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
	var wire wireSignRequest
	if err := json.Unmarshal(params, &wire); err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, "malformed params", nil)
		return
	}
	payloads, err := jsonpack.UnpackBytes(wire.Payloads)
	if err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, err.Error(), nil)
		return
	}
	req := &mwa.SignRequest{AuthToken: wire.AuthToken, Payloads: payloads}
	if err := mwa.ValidateSignRequest(req); err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, err.Error(), nil)
		return
	}

	future := newServerFuture[mwa.SignResult](s, len(req.Payloads), func(f *mwarpc.Future[mwa.SignResult]) {
		s.replySignPayload(id, method, req, f)
	})
	s.handlers.SignPayload(ctx, method, req, future)
}

func (s *Server) dispatchSignAndSendTransaction(ctx context.Context, id json.RawMessage, params json.RawMessage) {
	var wire wireSignAndSendTransactionRequest
	if err := json.Unmarshal(params, &wire); err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, "malformed params", nil)
		return
	}
	payloads, err := jsonpack.UnpackBytes(wire.Payloads)
	if err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, err.Error(), nil)
		return
	}
	req := &mwa.SignAndSendTransactionRequest{
		SignRequest: mwa.SignRequest{AuthToken: wire.AuthToken, Payloads: payloads},
		Commitment:  mwa.CommitmentLevel(wire.Commitment),
	}
	if err := mwa.ValidateSignAndSendTransactionRequest(req); err != nil {
		s.endpoint.ReplyErr(id, jsonrpc.CodeInvalidParams, err.Error(), nil)
		return
	}

	future := newServerFuture[mwa.SignAndSendTransactionResult](s, len(req.Payloads), func(f *mwarpc.Future[mwa.SignAndSendTransactionResult]) {
		s.replySignAndSendTransaction(id, req, f)
	})
	s.handlers.SignAndSendTransaction(ctx, req, future)
}

package mwaserver

import (
	"encoding/json"
	"errors"

	"github.com/mwaprotocol/mwa-go/pkg/jsonpack"
	"github.com/mwaprotocol/mwa-go/pkg/jsonrpc"
	"github.com/mwaprotocol/mwa-go/pkg/mwa"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
)

var errTransportClosed = errors.New("mwaserver: transport closed with request pending")

// newServerFuture builds a Future[T] whose resolution callback unregisters
// its transport-close hook and marshals reply onto the endpoint's single
// executor, per §5's requirement that a handler's resolution be observed
// only after being handed back to the endpoint.
func newServerFuture[T any](s *Server, payloadCount int, reply func(*mwarpc.Future[T])) *mwarpc.Future[T] {
	var unregister func()
	future := mwarpc.NewFuture[T](payloadCount, func(f *mwarpc.Future[T]) {
		if unregister != nil {
			unregister()
		}
		s.endpoint.Notify(func() { reply(f) })
	})
	unregister = s.endpoint.AddCloseHook(func() {
		future.CompleteWithInternalError(errTransportClosed)
	})
	return future
}

func (s *Server) replyAuthorize(id json.RawMessage, f *mwarpc.Future[mwa.AuthorizeResult]) {
	switch f.Verdict() {
	case mwarpc.VerdictSuccess:
		result, _, _, _ := f.Result()
		s.endpoint.ReplyOK(id, result)
	case mwarpc.VerdictDeclined, mwarpc.VerdictAuthTokenNotValid:
		s.endpoint.ReplyErr(id, mwa.CodeAuthorizationFailed, "AUTHORIZATION_FAILED", nil)
	case mwarpc.VerdictReauthorizationRequired:
		s.endpoint.ReplyErr(id, mwa.CodeReauthorize, "REAUTHORIZE", nil)
	default:
		s.replyInternal(id, f.Verdict())
	}
}

func (s *Server) replySignPayload(id json.RawMessage, method string, req *mwa.SignRequest, f *mwarpc.Future[mwa.SignResult]) {
	switch f.Verdict() {
	case mwarpc.VerdictSuccess:
		result, _, _, _ := f.Result()
		if len(result.SignedPayloads) != len(req.Payloads) {
			s.log.Error("handler violated signed-result length invariant", "method", method)
			s.endpoint.ReplyErr(id, jsonrpc.CodeInternalError, "internal error", nil)
			return
		}
		s.endpoint.ReplyOK(id, map[string]interface{}{
			"signed_payloads": jsonpack.PackBytes(result.SignedPayloads),
		})
	case mwarpc.VerdictDeclined:
		s.endpoint.ReplyErr(id, mwa.CodeNotSigned, "NOT_SIGNED", nil)
	case mwarpc.VerdictReauthorizationRequired:
		s.endpoint.ReplyErr(id, mwa.CodeReauthorize, "REAUTHORIZE", nil)
	case mwarpc.VerdictAuthTokenNotValid:
		s.endpoint.ReplyErr(id, mwa.CodeAuthorizationFailed, "AUTHORIZATION_FAILED", nil)
	case mwarpc.VerdictInvalidPayloads:
		_, invalid, _, _ := f.Result()
		s.endpoint.ReplyErr(id, mwa.CodeInvalidPayload, "INVALID_PAYLOAD", map[string]interface{}{
			"valid": jsonpack.PackBools(invalid.Valid),
		})
	default:
		s.replyInternal(id, f.Verdict())
	}
}

func (s *Server) replySignAndSendTransaction(id json.RawMessage, req *mwa.SignAndSendTransactionRequest, f *mwarpc.Future[mwa.SignAndSendTransactionResult]) {
	switch f.Verdict() {
	case mwarpc.VerdictSuccess:
		result, _, _, _ := f.Result()
		if len(result.Signatures) != len(req.Payloads) {
			s.log.Error("handler violated signatures length invariant", "method", mwa.MethodSignAndSendTransaction)
			s.endpoint.ReplyErr(id, jsonrpc.CodeInternalError, "internal error", nil)
			return
		}
		s.endpoint.ReplyOK(id, map[string]interface{}{
			"signatures": jsonpack.PackBytes(result.Signatures),
		})
	case mwarpc.VerdictDeclined:
		s.endpoint.ReplyErr(id, mwa.CodeNotSigned, "NOT_SIGNED", nil)
	case mwarpc.VerdictReauthorizationRequired:
		s.endpoint.ReplyErr(id, mwa.CodeReauthorize, "REAUTHORIZE", nil)
	case mwarpc.VerdictAuthTokenNotValid:
		s.endpoint.ReplyErr(id, mwa.CodeAuthorizationFailed, "AUTHORIZATION_FAILED", nil)
	case mwarpc.VerdictInvalidPayloads:
		_, invalid, _, _ := f.Result()
		s.endpoint.ReplyErr(id, mwa.CodeInvalidPayload, "INVALID_PAYLOAD", map[string]interface{}{
			"valid": jsonpack.PackBools(invalid.Valid),
		})
	case mwarpc.VerdictNotCommitted:
		_, _, notCommitted, _ := f.Result()
		s.endpoint.ReplyErr(id, mwa.CodeNotCommitted, "NOT_COMMITTED", map[string]interface{}{
			"signatures": jsonpack.PackBytes(notCommitted.Signatures),
			"commitment": jsonpack.PackBools(notCommitted.Committed),
		})
	default:
		s.replyInternal(id, f.Verdict())
	}
}

// replyInternal handles VerdictInternal and VerdictCancelled uniformly:
// per §7, internal failures and precondition violations never leak beyond a
// generic -32603, protecting the remote peer from internal state leakage.
func (s *Server) replyInternal(id json.RawMessage, verdict mwarpc.Verdict) {
	s.endpoint.ReplyErr(id, jsonrpc.CodeInternalError, "internal error", nil)
}

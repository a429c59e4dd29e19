package main

import (
	"context"

	"github.com/mwaprotocol/mwa-go/internal/logging"
	"github.com/mwaprotocol/mwa-go/pkg/mwa"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
)

// autoApproveHandlers auto-approves every request. It stands in for the
// real wallet UI/signer/issuer collaborators the core delegates to; the
// placeholder auth_token and public_key mirror the reference
// implementation's observed stub values (§9's open question: real issuance
// belongs to an external issuer this demo does not implement).
type autoApproveHandlers struct {
	log logging.Logger
}

func newAutoApproveHandlers(log logging.Logger) *autoApproveHandlers {
	return &autoApproveHandlers{log: log.Named("demo-wallet")}
}

func (h *autoApproveHandlers) Authorize(ctx context.Context, req *mwa.AuthorizeRequest, future *mwarpc.Future[mwa.AuthorizeResult]) {
	h.log.Info("auto-approving authorize", "privileged_methods", req.PrivilegedMethods)
	future.Complete(mwa.AuthorizeResult{
		AuthToken: "42",
		PublicKey: "4242424242",
	})
}

func (h *autoApproveHandlers) SignPayload(ctx context.Context, method string, req *mwa.SignRequest, future *mwarpc.Future[mwa.SignResult]) {
	h.log.Info("auto-signing payloads", "method", method, "count", len(req.Payloads))
	signed := make([][]byte, len(req.Payloads))
	for i, p := range req.Payloads {
		signed[i] = demoSign(p)
	}
	future.Complete(mwa.SignResult{SignedPayloads: signed})
}

func (h *autoApproveHandlers) SignAndSendTransaction(ctx context.Context, req *mwa.SignAndSendTransactionRequest, future *mwarpc.Future[mwa.SignAndSendTransactionResult]) {
	h.log.Info("auto-signing and submitting", "commitment", req.Commitment, "count", len(req.Payloads))
	sigs := make([][]byte, len(req.Payloads))
	for i, p := range req.Payloads {
		sigs[i] = demoSign(p)
	}
	future.Complete(mwa.SignAndSendTransactionResult{Signatures: sigs})
}

// demoSign is a placeholder for the injected Signer collaborator the core
// delegates real signing to; it is not a cryptographic signature.
func demoSign(payload []byte) []byte {
	out := make([]byte, len(payload))
	for i, b := range payload {
		out[i] = b ^ 0xFF
	}
	return out
}

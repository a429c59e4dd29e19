// Package mwarpc implements the full-duplex JSON-RPC engine (RpcEndpoint)
// and the one-shot Future[T] verdict type that together form the MWA
// protocol core's correlated-request layer. An RpcEndpoint assumes whole
// JSON-RPC frames arrive intact from some external transport; it owns id
// generation, outbound call correlation, per-call timeout/cancellation, and
// dispatch of inbound frames to an installed Dispatcher.
package mwarpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/mwaprotocol/mwa-go/internal/logging"
	"github.com/mwaprotocol/mwa-go/pkg/jsonrpc"
)

// DefaultCallTimeout is the per-call timeout used when Call's ctx carries no
// deadline. The reference
// implementation hardcodes this; here it is merely the default.
const DefaultCallTimeout = 90 * time.Second

// Sender writes one already-framed JSON-RPC message to the transport. It
// must be safe for concurrent use: Call sends from the caller's goroutine,
// and replies are sent from whichever goroutine runs HandleFrame, the
// Dispatcher, or the endpoint's executor.
type Sender func(frame []byte) error

// Dispatcher receives an inbound method call and must eventually call
// exactly one of ReplyOK or ReplyErr on the owning endpoint for that id.
// Dispatch itself must return promptly; long-running handler work happens
// off the executor and resolves asynchronously via the Future it creates.
type Dispatcher func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage)

// RemoteError is returned by Call when the peer replies with a JSON-RPC
// error object.
type RemoteError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mwarpc: remote error %d: %s", e.Code, e.Message)
}

// ErrTimeout is returned by Call when no response arrives before the call's
// deadline.
type ErrTimeout struct{ Method string }

func (e *ErrTimeout) Error() string { return fmt.Sprintf("mwarpc: call to %q timed out", e.Method) }

// ErrCancelled is returned by Call when it is cancelled explicitly or by
// endpoint Close.
type ErrCancelled struct{ Method string }

func (e *ErrCancelled) Error() string { return fmt.Sprintf("mwarpc: call to %q cancelled", e.Method) }

type pendingCall struct {
	method string
	result chan callResult
	cancel context.CancelFunc
}

type callResult struct {
	raw json.RawMessage
	err error
}

// RpcEndpoint is the full-duplex engine described by §4.3: outbound calls
// keyed by a monotonically increasing id, inbound dispatch to an installed
// Dispatcher, and a single executor goroutine on which every future
// resolution callback is serialized (§5's "dedicated executor" scheduling
// model).
type RpcEndpoint struct {
	log    logging.Logger
	send   Sender
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	dispatcherMu sync.RWMutex
	dispatcher   Dispatcher

	notifyCh chan func()
	notifyWG sync.WaitGroup

	closeHooksMu sync.Mutex
	closeHooks   map[int64]func()
	nextHookID   atomic.Int64

	metrics *Metrics
}

// NewEndpoint constructs an RpcEndpoint that writes outbound frames with
// send. Call SetDispatcher before any inbound frame is handed to
// HandleFrame.
func NewEndpoint(send Sender, log logging.Logger) *RpcEndpoint {
	if log == nil {
		log = logging.Default()
	}
	ep := &RpcEndpoint{
		log:        log.Named("mwarpc"),
		send:       send,
		pending:    make(map[string]*pendingCall),
		notifyCh:   make(chan func(), 64),
		closeHooks: make(map[int64]func()),
	}
	ep.notifyWG.Add(1)
	go ep.runExecutor()
	return ep
}

// runExecutor is the endpoint's single logical executor: every future
// resolution callback registered via notify runs here, one at a time, so
// handler code never observes a resolution concurrently with the endpoint's
// own state mutation.
func (ep *RpcEndpoint) runExecutor() {
	defer ep.notifyWG.Done()
	for fn := range ep.notifyCh {
		fn()
	}
}

// notify schedules fn to run on the endpoint's executor. Safe to call from
// any goroutine.
func (ep *RpcEndpoint) notify(fn func()) {
	ep.mu.Lock()
	closed := ep.closed
	ep.mu.Unlock()
	if closed {
		return
	}
	ep.notifyCh <- fn
}

// Notify schedules fn to run on the endpoint's single executor goroutine.
// MwaServer uses this to marshal a handler's Future resolution callback
// onto the endpoint per §5's scheduling model, so that replying on the wire
// never races the endpoint's own frame handling.
func (ep *RpcEndpoint) Notify(fn func()) {
	ep.notify(fn)
}

// AddCloseHook registers fn to run once, synchronously, when the endpoint
// closes (transport-loss cancellation of inbound-pending futures per §5).
// It returns an unregister function the caller must invoke once its future
// resolves normally, so resolved futures are not cancelled a second time.
func (ep *RpcEndpoint) AddCloseHook(fn func()) (unregister func()) {
	id := ep.nextHookID.Add(1)
	ep.closeHooksMu.Lock()
	ep.closeHooks[id] = fn
	ep.closeHooksMu.Unlock()
	return func() {
		ep.closeHooksMu.Lock()
		delete(ep.closeHooks, id)
		ep.closeHooksMu.Unlock()
	}
}

// SetDispatcher installs the inbound method handler. It must be called at
// most once before HandleFrame is used.
func (ep *RpcEndpoint) SetDispatcher(d Dispatcher) {
	ep.dispatcherMu.Lock()
	ep.dispatcher = d
	ep.dispatcherMu.Unlock()
}

// nextCallID returns the next outbound call id, monotonically increasing and
// unique for the lifetime of the endpoint.
func (ep *RpcEndpoint) nextCallID() int64 {
	return ep.nextID.Add(1)
}

// Call issues method with params, waits for the matching response, and
// returns its decoded result. If ctx carries no deadline, DefaultCallTimeout
// applies. Resolution sources per §4.3: a matching result frame, a matching
// error frame (-> *RemoteError), ctx expiry/cancellation (-> *ErrTimeout /
// *ErrCancelled), or endpoint Close (-> *ErrCancelled for every pending
// call).
func (ep *RpcEndpoint) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	id := ep.nextCallID()
	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("mwarpc: encode request: %w", err)
	}
	key := string(req.ID)

	callCtx, cancelCall := context.WithCancel(ctx)
	pc := &pendingCall{method: method, result: make(chan callResult, 1), cancel: cancelCall}

	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		cancelCall()
		return nil, &ErrCancelled{Method: method}
	}
	ep.pending[key] = pc
	ep.mu.Unlock()
	if ep.metrics != nil {
		ep.metrics.PendingCalls.Inc()
		ep.metrics.CallsTotal.WithLabelValues(method).Inc()
	}

	cleanup := func() {
		ep.mu.Lock()
		delete(ep.pending, key)
		ep.mu.Unlock()
		if ep.metrics != nil {
			ep.metrics.PendingCalls.Dec()
		}
	}

	frame, err := jsonrpc.Marshal(req)
	if err != nil {
		cleanup()
		cancelCall()
		return nil, fmt.Errorf("mwarpc: marshal request: %w", err)
	}
	if err := ep.send(frame); err != nil {
		cleanup()
		cancelCall()
		return nil, fmt.Errorf("mwarpc: send request: %w", err)
	}

	select {
	case res := <-pc.result:
		cleanup()
		cancelCall()
		return res.raw, res.err
	case <-callCtx.Done():
		cleanup()
		if ctx.Err() != nil && ctx.Err() != context.Canceled {
			if ep.metrics != nil {
				ep.metrics.CallTimeoutsTotal.WithLabelValues(method).Inc()
			}
			return nil, &ErrTimeout{Method: method}
		}
		if ep.metrics != nil {
			ep.metrics.CallCancelledTotal.WithLabelValues(method).Inc()
		}
		return nil, &ErrCancelled{Method: method}
	}
}

// HandleFrame decodes raw as either a response to a pending Call or an
// inbound request/notification routed to the installed Dispatcher. A frame
// that is not a JSON object, or a request frame that is not well-formed
// JSON-RPC 2.0, is answered with a -32700/-32600 error frame; a malformed
// response frame is logged and dropped. Per §7 strata 1, none of these reach
// the handler layer.
func (ep *RpcEndpoint) HandleFrame(ctx context.Context, raw []byte) {
	var peek struct {
		Method *string `json:"method"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		ep.replyParseError(&jsonrpc.ParseError{Err: err})
		return
	}
	if peek.Method != nil {
		ep.handleInboundRequest(ctx, raw)
		return
	}
	ep.handleInboundResponse(raw)
}

func (ep *RpcEndpoint) handleInboundResponse(raw []byte) {
	resp, err := jsonrpc.ParseResponse(raw)
	if err != nil {
		ep.log.Warn("dropping malformed response frame", "err", err)
		if ep.metrics != nil {
			ep.metrics.DroppedFramesTotal.Inc()
		}
		return
	}
	key := string(resp.ID)

	ep.mu.Lock()
	pc, ok := ep.pending[key]
	ep.mu.Unlock()
	if !ok {
		// Late response for a timed-out/cancelled/unknown id: discarded per
		// §5's cancellation semantics.
		if ep.metrics != nil {
			ep.metrics.DroppedFramesTotal.Inc()
		}
		return
	}

	var res callResult
	if resp.Error != nil {
		res = callResult{err: &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}}
	} else {
		res = callResult{raw: resp.Result}
	}
	select {
	case pc.result <- res:
	default:
	}
}

func (ep *RpcEndpoint) handleInboundRequest(ctx context.Context, raw []byte) {
	req, err := jsonrpc.ParseRequest(raw)
	if err != nil {
		ep.replyParseError(err)
		return
	}

	ep.dispatcherMu.RLock()
	d := ep.dispatcher
	ep.dispatcherMu.RUnlock()
	if d == nil {
		ep.ReplyErr(req.ID, jsonrpc.CodeMethodNotFound, "no dispatcher installed", nil)
		return
	}
	d(ctx, req.ID, req.Method, req.Params)
}

func (ep *RpcEndpoint) replyParseError(err error) {
	ep.log.Warn("rejecting malformed inbound frame", "err", err)
	if ivErr, ok := err.(*jsonrpc.InvalidRequestError); ok {
		ep.sendErrorFrame(json.RawMessage("null"), jsonrpc.CodeInvalidRequest, ivErr.Error(), nil)
		return
	}
	ep.sendErrorFrame(json.RawMessage("null"), jsonrpc.CodeParseError, err.Error(), nil)
}

// ReplyOK sends a success response for id. Part of the Dispatcher contract:
// every dispatched call must eventually call ReplyOK or ReplyErr exactly
// once.
func (ep *RpcEndpoint) ReplyOK(id json.RawMessage, result interface{}) error {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		return ep.ReplyErr(id, jsonrpc.CodeInternalError, "internal error", nil)
	}
	frame, err := jsonrpc.Marshal(resp)
	if err != nil {
		return err
	}
	return ep.send(frame)
}

// ReplyErr sends an error response for id.
func (ep *RpcEndpoint) ReplyErr(id json.RawMessage, code int, message string, data interface{}) error {
	return ep.sendErrorFrame(id, code, message, data)
}

func (ep *RpcEndpoint) sendErrorFrame(id json.RawMessage, code int, message string, data interface{}) error {
	var rpcErr *jsonrpc.Error
	if data != nil {
		var err error
		rpcErr, err = jsonrpc.NewErrorWithData(code, message, data)
		if err != nil {
			rpcErr = jsonrpc.NewError(jsonrpc.CodeInternalError, "internal error")
		}
	} else {
		rpcErr = jsonrpc.NewError(code, message)
	}
	resp := jsonrpc.NewErrorResponse(id, rpcErr)
	frame, err := jsonrpc.Marshal(resp)
	if err != nil {
		return err
	}
	return ep.send(frame)
}

// Close cancels every pending outbound call (transport-loss semantics from
// §5) and stops the executor goroutine. It aggregates the per-call
// cancellation bookkeeping errors, if any, into a single error.
func (ep *RpcEndpoint) Close() error {
	ep.mu.Lock()
	if ep.closed {
		ep.mu.Unlock()
		return nil
	}
	ep.closed = true
	pending := ep.pending
	ep.pending = make(map[string]*pendingCall)
	ep.mu.Unlock()

	var errs error
	for key, pc := range pending {
		select {
		case pc.result <- callResult{err: &ErrCancelled{Method: pc.method}}:
		default:
			errs = multierr.Append(errs, fmt.Errorf("mwarpc: call id %s already resolving during close", key))
		}
		pc.cancel()
	}

	ep.closeHooksMu.Lock()
	hooks := ep.closeHooks
	ep.closeHooks = make(map[int64]func())
	ep.closeHooksMu.Unlock()
	for _, hook := range hooks {
		hook()
	}

	close(ep.notifyCh)
	ep.notifyWG.Wait()
	return errs
}

package mwarpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwaprotocol/mwa-go/internal/logging"
)

// pairedEndpoints wires two RpcEndpoints' Sender/HandleFrame together
// directly, standing in for a transport.
func pairedEndpoints(t *testing.T) (client, server *RpcEndpoint) {
	t.Helper()
	lg := logging.Default()

	var srv *RpcEndpoint
	client = NewEndpoint(func(frame []byte) error {
		go srv.HandleFrame(context.Background(), frame)
		return nil
	}, lg)

	server = NewEndpoint(func(frame []byte) error {
		go client.HandleFrame(context.Background(), frame)
		return nil
	}, lg)
	srv = server

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

func TestCallHappyPath(t *testing.T) {
	client, server := pairedEndpoints(t)
	server.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
		require.Equal(t, "ping", method)
		require.NoError(t, server.ReplyOK(id, "pong"))
	})

	raw, err := client.Call(context.Background(), "ping", nil)
	require.NoError(t, err)
	var result string
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "pong", result)
}

func TestCallRemoteError(t *testing.T) {
	client, server := pairedEndpoints(t)
	server.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
		require.NoError(t, server.ReplyErr(id, -3, "NOT_SIGNED", nil))
	})

	_, err := client.Call(context.Background(), "sign_message", nil)
	require.Error(t, err)
	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, -3, remoteErr.Code)
}

func TestCallTimeout(t *testing.T) {
	client, server := pairedEndpoints(t)
	server.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
		// Never replies.
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, "sign_message", nil)
	require.Error(t, err)
	var timeoutErr *ErrTimeout
	require.ErrorAs(t, err, &timeoutErr)
}

func TestLateResponseAfterTimeoutIsDiscarded(t *testing.T) {
	client, server := pairedEndpoints(t)
	replyID := make(chan json.RawMessage, 1)
	server.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
		replyID <- id
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, "sign_message", nil)
	require.Error(t, err)
	var timeoutErr *ErrTimeout
	require.ErrorAs(t, err, &timeoutErr)

	id := <-replyID
	// Reply arrives after the client gave up; must not panic or resurrect
	// the call.
	require.NoError(t, server.ReplyOK(id, "too late"))
	time.Sleep(10 * time.Millisecond)
}

func TestCallCancellation(t *testing.T) {
	client, server := pairedEndpoints(t)
	server.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Call(ctx, "sign_message", nil)
	require.Error(t, err)
	var cancelledErr *ErrCancelled
	require.ErrorAs(t, err, &cancelledErr)
}

func TestCloseCancelsAllPendingCalls(t *testing.T) {
	client, server := pairedEndpoints(t)
	server.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {})

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := client.Call(context.Background(), "sign_message", nil)
			errCh <- err
		}()
	}
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, client.Close())

	for i := 0; i < 2; i++ {
		err := <-errCh
		require.Error(t, err)
		var cancelledErr *ErrCancelled
		require.ErrorAs(t, err, &cancelledErr)
	}
}

func TestUnknownMethodWithoutDispatcherRepliesMethodNotFound(t *testing.T) {
	lg := logging.Default()
	var serverSendErr error
	var gotFrame []byte
	server := NewEndpoint(func(frame []byte) error {
		gotFrame = frame
		return serverSendErr
	}, lg)
	t.Cleanup(func() { _ = server.Close() })

	server.HandleFrame(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"whatever"}`))
	require.NotNil(t, gotFrame)
	assert.Contains(t, string(gotFrame), "-32601")
}

func TestMalformedInboundFrameRejectedAsParseError(t *testing.T) {
	lg := logging.Default()
	var gotFrame []byte
	server := NewEndpoint(func(frame []byte) error {
		gotFrame = frame
		return nil
	}, lg)
	t.Cleanup(func() { _ = server.Close() })

	server.HandleFrame(context.Background(), []byte(`not json`))
	require.NotNil(t, gotFrame)
	assert.Contains(t, string(gotFrame), "-32700")
}

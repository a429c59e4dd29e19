package wsduplex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mwaprotocol/mwa-go/internal/logging"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
)

func TestServeRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	serverDone := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := New(ws, logging.Default())
		ep := mwarpc.NewEndpoint(conn.Send, logging.Default())
		ep.SetDispatcher(func(ctx context.Context, id json.RawMessage, method string, params json.RawMessage) {
			_ = ep.ReplyOK(id, "pong")
		})
		go func() {
			_ = conn.Serve(context.Background(), ep)
			close(serverDone)
		}()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientWS, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer clientWS.Close()

	require.NoError(t, clientWS.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)))

	clientWS.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := clientWS.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(raw), "pong")
}

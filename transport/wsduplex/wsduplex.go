// Package wsduplex adapts a gorilla/websocket connection into the
// byte-oriented duplex stream the MWA protocol core assumes. It is not part
// of the core: the core treats transport bring-up as external, and this
// package exists only so the demo and its tests can exercise the core over
// a real socket.
package wsduplex

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mwaprotocol/mwa-go/internal/logging"
	"github.com/mwaprotocol/mwa-go/pkg/mwarpc"
)

// Conn wraps a *websocket.Conn, reading whole text frames and handing each
// to an RpcEndpoint, and exposing a mwarpc.Sender that writes a frame back.
type Conn struct {
	ID  string
	ws  *websocket.Conn
	log logging.Logger
	mu  sync.Mutex
}

// New wraps ws, naming the connection with a fresh UUID the way the
// teacher's per-connection websocket handling does.
func New(ws *websocket.Conn, log logging.Logger) *Conn {
	if log == nil {
		log = logging.Default()
	}
	id := uuid.NewString()
	return &Conn{ID: id, ws: ws, log: log.Named("wsduplex").With("connection_id", id)}
}

// Send implements mwarpc.Sender, writing frame as a single text message.
// Concurrent calls are serialized, since gorilla/websocket connections are
// not safe for concurrent writers.
func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

// Serve reads frames from the socket until it closes or ctx is cancelled,
// handing each to ep.HandleFrame. It returns when the connection is done;
// callers should then call ep.Close().
func (c *Conn) Serve(ctx context.Context, ep *mwarpc.RpcEndpoint) error {
	defer c.log.Info("connection closed")
	c.log.Info("connection established")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		ep.HandleFrame(ctx, raw)
	}
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.ws.Close()
}

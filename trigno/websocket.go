// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// MQTT over WebSockets must negotiate this subprotocol.
const webSocketSubprotocol = "mqtt"

// Byte stream view of a WebSocket connection. MQTT packets may span or share
// binary messages, so reads continue across message boundaries.
type webSocketConn struct {
	*websocket.Conn
	reader io.Reader
}

// WebSocketConnection is a ConnectionProvider that connects to a broker over
// WebSockets. A wss:// address is secured with TLS configured by the options.
func WebSocketConnection(address string, opt ...TLSOption) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		u, err := url.Parse(address)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "invalid WebSocket address",
				wrapped: err,
			}
		}

		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout,
			Subprotocols:     []string{webSocketSubprotocol},
		}
		if u.Scheme == "wss" {
			d.TLSClientConfig, err = tlsConfig(ctx, u.Hostname(), opt)
			if err != nil {
				return nil, err
			}
		}

		conn, res, err := d.DialContext(ctx, address, nil)
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(&webSocketConn{Conn: conn}), nil
	}
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			typ, r, err := c.NextReader()
			if err != nil {
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n == 0 {
				continue
			}
			err = nil
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/eclipse/paho.golang/packets"
)

type (
	// ConnectionProvider returns a connection to the MQTT broker fronting a
	// sensor base. It is called again for every connection attempt. The
	// returned net.Conn must be safe for concurrent writes.
	ConnectionProvider func(context.Context) (net.Conn, error)

	dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}
)

// TCPConnection connects to a broker over plain TCP.
func TCPConnection(hostname string, port uint16) ConnectionProvider {
	addr := brokerAddress(hostname, port)
	return func(ctx context.Context) (net.Conn, error) {
		return dial(ctx, "TCP", &net.Dialer{}, addr)
	}
}

// TLSConnection connects to a broker with TLS over TCP. The TLS configuration
// is rebuilt from the options on every attempt so that rotated certificates
// are picked up on reconnect.
func TLSConnection(
	hostname string,
	port uint16,
	opt ...TLSOption,
) ConnectionProvider {
	addr := brokerAddress(hostname, port)
	return func(ctx context.Context) (net.Conn, error) {
		config, err := tlsConfig(ctx, hostname, opt)
		if err != nil {
			return nil, err
		}
		return dial(ctx, "TLS", &tls.Dialer{Config: config}, addr)
	}
}

func dial(
	ctx context.Context,
	kind string,
	d dialer,
	addr string,
) (net.Conn, error) {
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{
			message: fmt.Sprintf("error opening %s connection to %s", kind, addr),
			wrapped: err,
		}
	}
	return packets.NewThreadSafeConn(conn), nil
}

func brokerAddress(hostname string, port uint16) string {
	return net.JoinHostPort(hostname, strconv.FormatUint(uint64(port), 10))
}

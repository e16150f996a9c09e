// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// Config is a sensor base configuration read from the environment.
type Config struct {
	Connection ConnectionProvider
	MQTT       MQTTOptions
	Base       BaseOptions
}

type connectionProviderBuilder struct {
	hostname string
	port     uint16
	wsURL    string
	useTLS   *bool
	caFile   string
	certFile string
	keyFile  string
	passFile string
}

// ConfigFromEnv parses a sensor base configuration from well-known environment
// variables. Durations are ISO 8601 (e.g. PT30S). Note that this will only
// return an error if the environment variables parse incorrectly; a missing
// broker address leaves Connection nil.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	conn := connectionProviderBuilder{}

	for _, env := range os.Environ() {
		key, val, _ := strings.Cut(env, "=")
		switch key {
		case "TRIGNO_BROKER_HOSTNAME":
			conn.hostname = val

		case "TRIGNO_BROKER_TCP_PORT":
			port, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return nil, &InvalidArgumentError{
					message: "could not parse broker TCP port",
					wrapped: err,
				}
			}
			conn.port = uint16(port)

		case "TRIGNO_BROKER_WS_URL":
			conn.wsURL = val

		case "TRIGNO_USE_TLS":
			useTLS, err := strconv.ParseBool(val)
			if err != nil {
				return nil, &InvalidArgumentError{
					message: "could not parse use TLS",
					wrapped: err,
				}
			}
			conn.useTLS = &useTLS

		case "TRIGNO_CLIENT_ID":
			cfg.MQTT.ClientID = val

		case "TRIGNO_USERNAME":
			cfg.MQTT.Username = val

		case "TRIGNO_PASSWORD_FILE":
			pass, err := os.ReadFile(val)
			if err != nil {
				return nil, &InvalidArgumentError{
					message: "could not read password file",
					wrapped: err,
				}
			}
			cfg.MQTT.Password = []byte(strings.TrimSpace(string(pass)))

		case "TRIGNO_TOPIC_PREFIX":
			cfg.MQTT.TopicPrefix = val

		case "TRIGNO_BASE_NAME":
			cfg.MQTT.BaseName = val

		case "TRIGNO_KEEP_ALIVE":
			d, err := parseDuration(val, "keep-alive")
			if err != nil {
				return nil, err
			}
			cfg.MQTT.KeepAlive = d

		case "TRIGNO_CONNECT_TIMEOUT":
			d, err := parseDuration(val, "connect timeout")
			if err != nil {
				return nil, err
			}
			cfg.MQTT.ConnectTimeout = d

		case "TRIGNO_CHANNELS":
			channels, err := strconv.ParseUint(val, 10, 8)
			if err != nil {
				return nil, &InvalidArgumentError{
					message: "could not parse channel count",
					wrapped: err,
				}
			}
			cfg.Base.Channels = int(channels)

		case "TRIGNO_TLS_CA_FILE":
			conn.caFile = val

		case "TRIGNO_TLS_CERT_FILE":
			conn.certFile = val

		case "TRIGNO_TLS_KEY_FILE":
			conn.keyFile = val

		case "TRIGNO_TLS_KEY_PASSWORD_FILE":
			conn.passFile = val
		}
	}

	connectionProvider, err := conn.build()
	if err != nil {
		return nil, err
	}
	cfg.Connection = connectionProvider
	return cfg, nil
}

// Dial creates an MQTT transport and base and connects them.
func Dial(
	ctx context.Context,
	provider ConnectionProvider,
	mqtt *MQTTOptions,
	opt ...BaseOption,
) (*Base, error) {
	var options BaseOptions
	options.Apply(opt)

	mqttOpts := []MQTTOption{mqtt}
	if options.Logger != nil {
		mqttOpts = append(mqttOpts, WithLogger(options.Logger))
	}
	transport, err := NewMQTTTransport(provider, mqttOpts...)
	if err != nil {
		return nil, err
	}

	base, err := NewBase(transport, &options)
	if err != nil {
		return nil, err
	}
	if err := base.Connect(ctx); err != nil {
		return nil, err
	}
	return base, nil
}

// DialFromEnv is a shorthand for connecting a base configured by
// ConfigFromEnv. Options override the environment.
func DialFromEnv(ctx context.Context, opt ...BaseOption) (*Base, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	if cfg.Connection == nil {
		return nil, &InvalidArgumentError{
			message: "broker connection must be configured",
		}
	}
	return Dial(
		ctx,
		cfg.Connection,
		&cfg.MQTT,
		append([]BaseOption{&cfg.Base}, opt...)...,
	)
}

func parseDuration(val, name string) (time.Duration, error) {
	d, err := duration.Parse(val)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + name,
			wrapped: err,
		}
	}
	return d.ToTimeDuration(), nil
}

func (b *connectionProviderBuilder) build() (ConnectionProvider, error) {
	if b.wsURL != "" {
		if b.hostname != "" || b.port != 0 {
			return nil, &InvalidArgumentError{
				message: "WebSocket URL and broker hostname are exclusive",
			}
		}
		if (b.certFile != "") != (b.keyFile != "") {
			return nil, &InvalidArgumentError{
				message: "certificate file and key file must be provided together",
			}
		}
		return WebSocketConnection(b.wsURL, b.tlsOptions()...), nil
	}

	if b.hostname == "" {
		if b.port != 0 || b.useTLS != nil || b.hasTLS() {
			return nil, &InvalidArgumentError{
				message: "connection configuration provided without hostname",
			}
		}
		return nil, nil
	}

	if b.useTLS != nil && !*b.useTLS {
		if b.hasTLS() {
			return nil, &InvalidArgumentError{
				message: "TLS configuration provided but not using TLS",
			}
		}
		if b.port == 0 {
			b.port = 1883
		}
		return TCPConnection(b.hostname, b.port), nil
	}

	if b.port == 0 {
		b.port = 8883
	}

	if (b.certFile != "") != (b.keyFile != "") {
		return nil, &InvalidArgumentError{
			message: "certificate file and key file must be provided together",
		}
	}

	return TLSConnection(b.hostname, b.port, b.tlsOptions()...), nil
}

func (b *connectionProviderBuilder) tlsOptions() []TLSOption {
	var tlsOpts []TLSOption

	// Bypasses hostname check in TLS config when deliberately connecting to
	// localhost.
	if b.hostname == "localhost" {
		tlsOpts = append(tlsOpts, WithInsecureSkipVerify())
	}

	if b.certFile != "" {
		if b.passFile != "" {
			tlsOpts = append(tlsOpts, WithEncryptedX509(
				b.certFile,
				b.keyFile,
				b.passFile,
			))
		} else {
			tlsOpts = append(tlsOpts, WithX509(
				b.certFile,
				b.keyFile,
			))
		}
	}

	if b.caFile != "" {
		tlsOpts = append(tlsOpts, WithCA(b.caFile))
	}
	return tlsOpts
}

func (b *connectionProviderBuilder) hasTLS() bool {
	return b.caFile != "" || b.certFile != "" ||
		b.keyFile != "" || b.passFile != ""
}

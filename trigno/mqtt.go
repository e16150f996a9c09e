// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"github.com/jupacheco1407/datacollector/internal/log"
	"github.com/jupacheco1407/datacollector/trigno/retry"
)

// MQTTTransport reaches a sensor base through an MQTT broker. The base
// publishes frames as JSON to <prefix>/<base>/frames and accepts START and
// STOP on <prefix>/<base>/commands.
type MQTTTransport struct {
	provider ConnectionProvider
	options  MQTTOptions
	frames   string
	commands string
	log      logger

	// Set once the frames subscription is in place; cleared on loss or
	// Close so that only the first failure is reported.
	connected atomic.Bool

	mu      sync.Mutex
	client  *paho.Client
	deliver FrameHandler
	lost    func(error)
	closed  bool
}

// Reason codes at or above this value indicate failure.
const reasonCodeFailure = 0x80

// Retryable reason codes for CONNACK.
var retryableConnackCodes = map[byte]bool{
	0x88: true, // Server unavailable
	0x89: true, // Server busy
	0x97: true, // Quota exceeded
	0x9F: true, // Connection rate exceeded
}

// MQTT 5 guarantees brokers accept client IDs of up to 23 alphanumeric
// characters.
const (
	maxClientIDLength = 23
	clientIDPrefix    = "maxforce"
)

// NewMQTTTransport creates a transport that connects through the given
// provider when the base is connected.
func NewMQTTTransport(
	provider ConnectionProvider,
	opt ...MQTTOption,
) (*MQTTTransport, error) {
	if provider == nil {
		return nil, &InvalidArgumentError{
			message: "connection provider must not be nil",
		}
	}

	var options MQTTOptions
	options.Apply(opt)

	if options.ClientID == "" {
		options.ClientID = randomClientID()
	}
	if options.TopicPrefix == "" {
		options.TopicPrefix = DefaultTopicPrefix
	}
	if options.BaseName == "" {
		options.BaseName = DefaultBaseName
	}
	if options.KeepAlive == 0 {
		options.KeepAlive = DefaultKeepAlive
	}
	if options.ConnectTimeout == 0 {
		options.ConnectTimeout = DefaultConnectTimeout
	}

	for name, level := range map[string]string{
		"topic prefix": options.TopicPrefix,
		"base name":    options.BaseName,
	} {
		if strings.ContainsAny(level, "+#") {
			return nil, &InvalidArgumentError{
				message: fmt.Sprintf("%s must not contain wildcards", name),
			}
		}
	}
	if options.KeepAlive < 0 || options.KeepAlive.Seconds() > 65535 {
		return nil, &InvalidArgumentError{
			message: "keep-alive must be between 0 and 65535 seconds",
		}
	}
	if options.ConnectTimeout < 0 {
		return nil, &InvalidArgumentError{
			message: "connect timeout must not be negative",
		}
	}
	if options.Retry == nil {
		options.Retry = &retry.ExponentialBackoff{
			Timeout: options.ConnectTimeout,
			Logger:  options.Logger,
		}
	}

	topic := options.TopicPrefix + "/" + options.BaseName
	return &MQTTTransport{
		provider: provider,
		options:  options,
		frames:   topic + "/frames",
		commands: topic + "/commands",
		log:      logger{log.Wrap(options.Logger)},
	}, nil
}

// FramesTopic returns the topic frames are received on.
func (t *MQTTTransport) FramesTopic() string {
	return t.frames
}

// CommandsTopic returns the topic commands are published to.
func (t *MQTTTransport) CommandsTopic() string {
	return t.commands
}

// ClientID returns the MQTT client ID used by the transport.
func (t *MQTTTransport) ClientID() string {
	return t.options.ClientID
}

// Open connects to the broker and subscribes to frames, retrying according to
// the configured policy.
func (t *MQTTTransport) Open(
	ctx context.Context,
	deliver FrameHandler,
	lost func(error),
) error {
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return &StateError{State: Closed}
	case t.client != nil:
		t.mu.Unlock()
		return &StateError{State: Connected}
	}
	t.deliver, t.lost = deliver, lost
	t.mu.Unlock()

	return t.options.Retry.Start(ctx, "connect", t.connect)
}

func (t *MQTTTransport) connect(ctx context.Context) (bool, error) {
	conn, err := t.provider(ctx)
	if err != nil {
		return true, err
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: t.options.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			t.onPublishReceived,
		},
		OnClientError:      t.onClientError,
		OnServerDisconnect: t.onServerDisconnect,
	})

	connect := &paho.Connect{
		ClientID:     t.options.ClientID,
		CleanStart:   true,
		KeepAlive:    uint16(t.options.KeepAlive.Seconds()),
		Username:     t.options.Username,
		UsernameFlag: t.options.Username != "",
		Password:     t.options.Password,
		PasswordFlag: len(t.options.Password) != 0,
	}
	t.log.packet(ctx, "connect", connect)

	connack, err := client.Connect(ctx, connect)
	if connack != nil {
		t.log.packet(ctx, "connack", connack)
		if connack.ReasonCode >= reasonCodeFailure {
			_ = conn.Close()
			return retryableConnackCodes[connack.ReasonCode],
				&ConnackError{ReasonCode: connack.ReasonCode}
		}
	}
	if err != nil {
		_ = conn.Close()
		return true, &ConnectionError{
			message: "error connecting to broker",
			wrapped: err,
		}
	}

	subscribe := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: t.frames, QoS: 1}},
	}
	t.log.packet(ctx, "subscribe", subscribe)

	suback, err := client.Subscribe(ctx, subscribe)
	if suback != nil {
		t.log.packet(ctx, "suback", suback)
		if len(suback.Reasons) > 0 && suback.Reasons[0] >= reasonCodeFailure {
			_ = client.Disconnect(&paho.Disconnect{})
			return false, &ConnectionError{
				message: fmt.Sprintf(
					"frames subscription refused with reason code %x",
					suback.Reasons[0],
				),
			}
		}
	}
	if err != nil {
		_ = client.Disconnect(&paho.Disconnect{})
		return true, &ConnectionError{
			message: "error subscribing to frames",
			wrapped: err,
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		_ = client.Disconnect(&paho.Disconnect{})
		return false, &StateError{State: Closed}
	}
	t.client = client
	t.connected.Store(true)
	return false, nil
}

// Command publishes a control command to the base at QoS 1 and waits for the
// broker to acknowledge it.
func (t *MQTTTransport) Command(ctx context.Context, cmd Command) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !t.connected.Load() {
		return &StateError{message: "the MQTT transport is not connected"}
	}

	publish := &paho.Publish{
		Topic:   t.commands,
		QoS:     1,
		Payload: []byte(cmd),
		Properties: &paho.PublishProperties{
			ContentType: "text/plain",
		},
	}
	t.log.packet(ctx, "publish", publish)

	res, err := client.Publish(ctx, publish)
	if res != nil {
		t.log.packet(ctx, "puback", res)
		if res.ReasonCode >= reasonCodeFailure {
			return &ConnectionError{
				message: fmt.Sprintf(
					"command refused with reason code %x",
					res.ReasonCode,
				),
			}
		}
	}
	if err != nil {
		return &ConnectionError{
			message: "error publishing command",
			wrapped: err,
		}
	}
	return nil
}

// Close disconnects from the broker. The lost callback is not called for a
// connection closed this way.
func (t *MQTTTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	client := t.client
	t.mu.Unlock()

	t.connected.Store(false)
	if client == nil {
		return nil
	}

	disconnect := &paho.Disconnect{ReasonCode: 0}
	t.log.packet(context.Background(), "disconnect", disconnect)
	if err := client.Disconnect(disconnect); err != nil {
		return &ConnectionError{
			message: "error disconnecting from broker",
			wrapped: err,
		}
	}
	return nil
}

func (t *MQTTTransport) onPublishReceived(
	pr paho.PublishReceived,
) (bool, error) {
	ctx := context.Background()
	pub := pr.Packet
	t.log.packet(ctx, "publish received", pub)

	if pub.Topic != t.frames {
		return false, nil
	}

	var f Frame
	if err := json.Unmarshal(pub.Payload, &f); err != nil {
		t.log.Warn(ctx, "malformed frame dropped", err)
		return true, nil
	}

	t.mu.Lock()
	deliver := t.deliver
	t.mu.Unlock()

	if deliver != nil {
		deliver(ctx, &f)
	}
	return true, nil
}

func (t *MQTTTransport) onClientError(err error) {
	t.fail(&ConnectionError{
		message: "MQTT client error",
		wrapped: err,
	})
}

func (t *MQTTTransport) onServerDisconnect(disconnect *paho.Disconnect) {
	t.log.packet(context.Background(), "disconnect received", disconnect)
	var code byte
	if disconnect != nil {
		code = disconnect.ReasonCode
	}
	t.fail(&DisconnectError{ReasonCode: code})
}

func (t *MQTTTransport) fail(err error) {
	if !t.connected.CompareAndSwap(true, false) {
		return
	}

	t.mu.Lock()
	lost := t.lost
	t.mu.Unlock()

	if lost != nil {
		lost(err)
	}
}

// Each host opens a clean session, so a random suffix is enough to keep hosts
// sharing a broker apart.
func randomClientID() string {
	id := uuid.New()
	suffix := hex.EncodeToString(id[:])
	return clientIDPrefix + suffix[:maxClientIDLength-len(clientIDPrefix)]
}

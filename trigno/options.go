// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"log/slog"
	"time"

	"github.com/jupacheco1407/datacollector/internal"
	"github.com/jupacheco1407/datacollector/trigno/retry"
)

type (
	// BaseOption represents a single base option.
	BaseOption interface{ base(*BaseOptions) }

	// BaseOptions are the resolved base options.
	BaseOptions struct {
		Channels int
		Logger   *slog.Logger
	}

	// SourceOption represents a single sensor source option.
	SourceOption interface{ source(*SourceOptions) }

	// SourceOptions are the resolved sensor source options.
	SourceOptions struct {
		CommandTimeout time.Duration
		Logger         *slog.Logger
	}

	// MQTTOption represents a single MQTT transport option.
	MQTTOption interface{ mqtt(*MQTTOptions) }

	// MQTTOptions are the resolved MQTT transport options.
	MQTTOptions struct {
		ClientID    string
		TopicPrefix string
		BaseName    string
		Username    string
		Password    []byte

		// KeepAlive is rounded down to whole seconds on the wire.
		KeepAlive time.Duration

		// Retry governs connection establishment. If nil, connecting is
		// retried with exponential backoff until ConnectTimeout expires.
		Retry          retry.Policy
		ConnectTimeout time.Duration

		Logger *slog.Logger
	}

	// WithClientID sets the MQTT client ID. A random ID is used if unset.
	WithClientID string

	// WithTopicPrefix sets the first topic level shared by all bases.
	WithTopicPrefix string

	// WithBaseName selects which base on the broker to talk to.
	WithBaseName string

	// WithUsername sets the MQTT username.
	WithUsername string

	// WithPassword sets the MQTT password.
	WithPassword []byte

	// WithKeepAlive sets the MQTT keep-alive interval.
	WithKeepAlive time.Duration

	// WithConnectTimeout bounds the time spent establishing a connection,
	// including retries.
	WithConnectTimeout time.Duration

	// WithRetry sets the retry policy for connection establishment.
	WithRetry struct{ retry.Policy }

	// WithChannels sets the number of sensor channels the base streams.
	WithChannels int

	// WithCommandTimeout bounds each START or STOP command issued by a
	// sensor source.
	WithCommandTimeout time.Duration

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

const (
	// DefaultChannels is the number of sensor slots on a full base.
	DefaultChannels = 16

	// DefaultTopicPrefix is the first topic level used by bases.
	DefaultTopicPrefix = "trigno"

	// DefaultBaseName is the base addressed when none is configured.
	DefaultBaseName = "base"

	// DefaultKeepAlive is the MQTT keep-alive used when none is configured.
	DefaultKeepAlive = 60 * time.Second

	// DefaultConnectTimeout bounds connection establishment when no timeout
	// is configured.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultCommandTimeout bounds collection commands when no timeout is
	// configured.
	DefaultCommandTimeout = 5 * time.Second
)

// Apply resolves the provided list of options.
func (o *BaseOptions) Apply(
	opts []BaseOption,
	rest ...BaseOption,
) {
	for opt := range internal.Apply[BaseOption](opts, rest...) {
		opt.base(o)
	}
}

func (o *BaseOptions) base(opt *BaseOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *SourceOptions) Apply(
	opts []SourceOption,
	rest ...SourceOption,
) {
	for opt := range internal.Apply[SourceOption](opts, rest...) {
		opt.source(o)
	}
}

func (o *SourceOptions) source(opt *SourceOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *MQTTOptions) Apply(
	opts []MQTTOption,
	rest ...MQTTOption,
) {
	for opt := range internal.Apply[MQTTOption](opts, rest...) {
		opt.mqtt(o)
	}
}

func (o *MQTTOptions) mqtt(opt *MQTTOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithClientID) mqtt(opt *MQTTOptions) {
	opt.ClientID = string(o)
}

func (o WithTopicPrefix) mqtt(opt *MQTTOptions) {
	opt.TopicPrefix = string(o)
}

func (o WithBaseName) mqtt(opt *MQTTOptions) {
	opt.BaseName = string(o)
}

func (o WithUsername) mqtt(opt *MQTTOptions) {
	opt.Username = string(o)
}

func (o WithPassword) mqtt(opt *MQTTOptions) {
	opt.Password = []byte(o)
}

func (o WithKeepAlive) mqtt(opt *MQTTOptions) {
	opt.KeepAlive = time.Duration(o)
}

func (o WithConnectTimeout) mqtt(opt *MQTTOptions) {
	opt.ConnectTimeout = time.Duration(o)
}

func (o WithRetry) mqtt(opt *MQTTOptions) {
	opt.Retry = o.Policy
}

func (o WithChannels) base(opt *BaseOptions) {
	opt.Channels = int(o)
}

func (o WithCommandTimeout) source(opt *SourceOptions) {
	opt.CommandTimeout = time.Duration(o)
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) interface {
	BaseOption
	SourceOption
	MQTTOption
} {
	return withLogger{logger}
}

func (o withLogger) base(opt *BaseOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) source(opt *SourceOptions) {
	opt.Logger = o.Logger
}

func (o withLogger) mqtt(opt *MQTTOptions) {
	opt.Logger = o.Logger
}

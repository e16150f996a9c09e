// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import "fmt"

// BaseState indicates the current state of a sensor base.
type BaseState byte

const (
	// The base has not yet been connected.
	NotConnected BaseState = iota

	// The base is connected and has not yet been closed or lost.
	Connected

	// The base has been closed by the user or its transport was lost.
	Closed
)

// StateError is returned when an operation cannot proceed due to the state
// of the sensor base.
type StateError struct {
	State   BaseState
	message string
}

func (e *StateError) Error() string {
	if e.message != "" {
		return e.message
	}
	switch e.State {
	case NotConnected:
		return "the sensor base has not been connected"
	case Connected:
		return "the sensor base is already connected"
	case Closed:
		return "the sensor base has been closed"
	default:
		// It should not be possible to get here.
		return ""
	}
}

// ConnectionError indicates that the transport could not reach the sensor
// base or lost its connection. It may wrap an underlying error using Go
// standard error wrapping.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// ConnackError indicates that the broker refused the connection with the given
// MQTT reason code.
type ConnackError struct {
	ReasonCode byte
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with error reason code %x",
		e.ReasonCode,
	)
}

// DisconnectError indicates that the broker closed the connection with the
// given MQTT reason code.
type DisconnectError struct {
	ReasonCode byte
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with reason code %x",
		e.ReasonCode,
	)
}

// InvalidArgumentError indicates that the user has provided an invalid value
// for an option. It may wrap an underlying error using Go standard error
// wrapping.
type InvalidArgumentError struct {
	wrapped error
	message string
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}

// CommandError indicates that the base did not accept a control command.
type CommandError struct {
	Command Command
	wrapped error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.wrapped)
}

func (e *CommandError) Unwrap() error {
	return e.wrapped
}

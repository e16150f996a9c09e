// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package trigno

import (
	"encoding/json"
	"time"

	"github.com/relvacode/iso8601"
)

// Frame is a block of samples pushed by the sensor base. Channels[c] holds the
// samples read from channel c since the previous frame; runs may differ in
// length between channels.
type Frame struct {
	Sequence  uint64
	Timestamp time.Time
	Channels  [][]float64
}

type frameJSON struct {
	Sequence  uint64      `json:"seq"`
	Timestamp string      `json:"timestamp,omitempty"`
	Channels  [][]float64 `json:"channels"`
}

// MarshalJSON encodes the frame in the wire format published by the base.
func (f Frame) MarshalJSON() ([]byte, error) {
	raw := frameJSON{Sequence: f.Sequence, Channels: f.Channels}
	if !f.Timestamp.IsZero() {
		raw.Timestamp = f.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes a frame. Timestamps may be any ISO 8601 form; bases
// with a coarse clock commonly omit the seconds fraction or the zone.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var raw frameJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var ts time.Time
	if raw.Timestamp != "" {
		var err error
		ts, err = iso8601.ParseString(raw.Timestamp)
		if err != nil {
			return &InvalidArgumentError{
				message: "invalid frame timestamp",
				wrapped: err,
			}
		}
	}

	*f = Frame{
		Sequence:  raw.Sequence,
		Timestamp: ts,
		Channels:  raw.Channels,
	}
	return nil
}

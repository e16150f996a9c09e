// Copyright (c) jupacheco1407.
// Licensed under the MIT License.
package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

type (
	// Profile is a saved measurement setup. Zero values select the source's
	// defaults.
	Profile struct {
		Source     string   `yaml:"source"`
		Iterations int      `yaml:"iterations"`
		Interval   Duration `yaml:"interval"`
		Seed       *int64   `yaml:"seed"`
		Amplitude  float64  `yaml:"amplitude"`
		Channels   int      `yaml:"channels"`
	}

	// Duration accepts either an ISO 8601 duration ("PT0.5S") or a Go
	// duration string ("500ms").
	Duration time.Duration
)

// Sources understood by the measure command.
const (
	SourceSynthetic = "synthetic"
	SourceTrigno    = "trigno"
)

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// ParseProfile decodes and validates a YAML profile. Unknown fields are
// rejected.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	switch p.Source {
	case "", SourceSynthetic, SourceTrigno:
	default:
		return fmt.Errorf("unknown source %q", p.Source)
	}
	if p.Iterations < 0 {
		return errors.New("iterations must not be negative")
	}
	if p.Interval < 0 {
		return errors.New("interval must not be negative")
	}
	if p.Amplitude < 0 {
		return errors.New("amplitude must not be negative")
	}
	if p.Channels < 0 {
		return errors.New("channels must not be negative")
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	if iso, err := duration.Parse(s); err == nil {
		*d = Duration(iso.ToTimeDuration())
		return nil
	}
	td, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, s)
	}
	*d = Duration(td)
	return nil
}

// String returns the duration as an ISO 8601 string.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

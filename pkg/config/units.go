package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to accept either Go duration strings ("90s",
// "10m") or bare numbers interpreted as seconds in YAML. Device manuals quote
// intervals in seconds, so both spellings show up in real config files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		dur, err := ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	}

	var f float64
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("invalid duration value: %s", value.Value)
	}
	*d = Duration(time.Duration(f * float64(time.Second)))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ParseDuration parses a duration string, treating a bare number as seconds.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Seconds returns the duration as float seconds.
func (d Duration) Seconds() float64 {
	return time.Duration(d).Seconds()
}

// FromSeconds converts float seconds into a Duration.
func FromSeconds(s float64) Duration {
	return Duration(time.Duration(s * float64(time.Second)))
}

package chamber

import (
	"context"
	"errors"
)

var (
	// ErrUnreachable is returned when the device cannot be reached after retries.
	ErrUnreachable = errors.New("chamber unreachable")
	// ErrBadResponse is returned when a reply cannot be parsed in any known format.
	ErrBadResponse = errors.New("invalid chamber response")
)

// Range is the setpoint range the device reports.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether t falls within the range.
func (r Range) Contains(t float64) bool {
	return t >= r.Min && t <= r.Max
}

// Client defines the interface for chamber interaction. Implementations are
// the AtmoWEB HTTP client and the in-process mock.
type Client interface {
	// ReadState returns the current chamber temperature and the setpoint range.
	ReadState(ctx context.Context) (temp float64, rng Range, err error)
	// SetTarget commands a new setpoint.
	SetTarget(ctx context.Context, temp float64) error
	// CurrentOp returns the device operating mode, e.g. "Manual".
	CurrentOp(ctx context.Context) (string, error)
	// ExitProgram aborts a running program so the device accepts manual setpoints.
	ExitProgram(ctx context.Context) error
	// Close cleans up resources associated with the client.
	Close() error
}

package model

import "time"

// Reading is a single timestamped temperature sample from the chamber.
// The driver appends readings monotonically; consumers only read them.
type Reading struct {
	Timestamp   float64 `json:"timestamp"`   // Seconds (monotonic within a run)
	Temperature float64 `json:"temperature"` // °C
}

// Residual is the per-update diagnostic record of the filter.
type Residual struct {
	Innovation float64 `json:"innovation"` // Measurement minus predicted measurement (°C)
	S          float64 `json:"s"`          // Innovation covariance
	R          float64 `json:"r"`          // Measurement noise variance used
}

// Estimate is the output of one successful estimator update.
type Estimate struct {
	Tau       float64    `json:"tau"`  // Time constant (seconds, > 0)
	Tinf      float64    `json:"tinf"` // Asymptotic temperature (°C)
	T0        float64    `json:"t0"`   // First temperature of the processed window (°C)
	Residuals []Residual `json:"residuals,omitempty"`
}

// Mode identifies the direction of a setpoint run.
type Mode string

const (
	ModeHeating Mode = "heating"
	ModeCooling Mode = "cooling"
)

// ModeFor returns the run direction for a start temperature and target.
func ModeFor(start, target float64) Mode {
	if target > start {
		return ModeHeating
	}
	return ModeCooling
}

// Sample is one row of the per-run log and the live stream.
type Sample struct {
	Time        time.Time `json:"time"`
	Elapsed     float64   `json:"elapsed_s"`
	Temperature float64   `json:"temperature"`
	ETA         float64   `json:"eta_s"`
	ETAKnown    bool      `json:"eta_known"`
	Tau         float64   `json:"tau_s"`
	Tinf        float64   `json:"tinf"`
	Progress    float64   `json:"progress_pct"`
}

// RunRecord summarizes a completed setpoint run for the history store.
type RunRecord struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	StartTemp float64   `json:"start_temp"`
	Target    float64   `json:"target"`
	Mode      Mode      `json:"mode"`
	FinalTau  float64   `json:"final_tau"` // seconds
	EtaModel  string    `json:"eta_model"` // "ekf" or "exp"
	Samples   int       `json:"samples"`
}

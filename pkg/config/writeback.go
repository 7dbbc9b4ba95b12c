package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunResult carries the post-run mutations to persist.
type RunResult struct {
	NextIndex int
	Heating   bool
	Tau       Duration // Learned time constant for the direction that ran
	Info      string   // Human-readable provenance note
	UpdateTau bool     // Whether tau_override allowed learning
}

// ApplyRunResult rewrites only the fields a completed run is allowed to
// touch: device.current_set_index and, when enabled, the learned tau plus its
// info note. Every other key in the file, including ones this version does
// not know about, is preserved.
func ApplyRunResult(path string, res RunResult) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config for update: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config for update: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	device := subMap(raw, "device")
	device["current_set_index"] = res.NextIndex

	if res.UpdateTau {
		etaModel := subMap(raw, "eta_model")
		key, infoKey := "tau_cooling", "tau_cooling_info"
		if res.Heating {
			key, infoKey = "tau_heating", "tau_heating_info"
		}
		etaModel[key] = time.Duration(res.Tau).String()
		etaModel[infoKey] = res.Info
	}

	out, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal updated config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write updated config: %w", err)
	}
	return nil
}

func subMap(raw map[string]any, key string) map[string]any {
	if m, ok := raw[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	raw[key] = m
	return m
}

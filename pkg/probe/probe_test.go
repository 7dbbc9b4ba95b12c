package probe

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"thermoctl/pkg/chamber/mock"
)

func TestRunAndAnalyze(t *testing.T) {
	probes := []Probe{
		{Name: "ok", Check: func(ctx context.Context) error { return nil }, Critical: true},
		{Name: "warn", Check: func(ctx context.Context) error { return errors.New("minor") }, Critical: false},
	}

	results := Run(context.Background(), probes)
	if len(results) != 2 {
		t.Fatalf("len = %d, want 2", len(results))
	}
	if results[0].Error != nil {
		t.Errorf("ok probe failed: %v", results[0].Error)
	}
	if results[1].Error == nil {
		t.Error("warn probe did not record its error")
	}

	// Non-critical failure should not block startup
	if err := AnalyzeResults(results); err != nil {
		t.Errorf("AnalyzeResults = %v, want nil", err)
	}
}

func TestAnalyzeCriticalFailure(t *testing.T) {
	results := Run(context.Background(), []Probe{
		{Name: "dead", Check: func(ctx context.Context) error { return errors.New("unreachable") }, Critical: true},
	})
	if err := AnalyzeResults(results); err == nil {
		t.Error("critical failure did not produce an error")
	}
}

func TestDeviceCheck(t *testing.T) {
	m := mock.New(mock.Config{StartTemp: 20})
	defer m.Close()

	p := DeviceCheck(m)
	if err := p.Check(context.Background()); err != nil {
		t.Errorf("DeviceCheck against mock failed: %v", err)
	}
}

func TestDirWritableCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	p := RunLogDirCheck(dir)
	if err := p.Check(context.Background()); err != nil {
		t.Errorf("RunLogDirCheck failed: %v", err)
	}
}

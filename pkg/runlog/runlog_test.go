package runlog

import (
	"os"
	"strings"
	"testing"
	"time"

	"thermoctl/pkg/model"
)

func testMeta() Meta {
	return Meta{
		StartedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		StartTemp: 21.5,
		Target:    40.0,
		Mode:      model.ModeHeating,
		EtaModel:  "ekf",
		Tolerance: 0.5,
		PollEvery: 60 * time.Second,
		Range:     [2]float64{0, 70},
	}
}

func TestFilename(t *testing.T) {
	got := Filename(testMeta().StartedAt, 21.5, 40.0)
	want := "2026-08-30_12-00-00_21.5_40.0.csv"
	if got != want {
		t.Errorf("Filename = %q, want %q", got, want)
	}
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, testMeta())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	base := testMeta().StartedAt
	samples := []model.Sample{
		{Time: base, Elapsed: 0, Temperature: 21.5, Tau: 600, Progress: 0},
		{Time: base.Add(time.Minute), Elapsed: 60, Temperature: 23.2, ETA: 1800, ETAKnown: true, Tau: 610, Progress: 9.2},
	}
	for _, s := range samples {
		if err := w.Append(s); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := Read(w.Path())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ETAKnown {
		t.Error("first sample should have no ETA")
	}
	if !got[1].ETAKnown || got[1].ETA != 1800 {
		t.Errorf("second sample ETA = (%v, %v), want (1800, true)", got[1].ETA, got[1].ETAKnown)
	}
	if got[1].Temperature != 23.2 {
		t.Errorf("temperature = %v, want 23.2", got[1].Temperature)
	}
	if !got[1].Time.Equal(samples[1].Time) {
		t.Errorf("time = %v, want %v", got[1].Time, samples[1].Time)
	}
}

func TestHeaderContents(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(dir, testMeta())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	w.Close()

	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		"# Start Temperature (°C): 21.50",
		"# Target Temperature (°C): 40.00",
		"# ETA Model: EKF",
		"# Mode: heating",
		"Timestamp,Elapsed_s,Temperature,ETA_s,Tau_s,Progress_pct",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("header missing %q:\n%s", want, text)
		}
	}
}

func TestReadRejectsBadRow(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.csv"
	if err := os.WriteFile(path, []byte("a,b,c\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("Read of malformed file did not fail")
	}
}

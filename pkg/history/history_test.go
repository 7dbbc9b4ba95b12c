package history

import (
	"path/filepath"
	"testing"
	"time"

	"thermoctl/pkg/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(startedAt time.Time, mode model.Mode, tau float64) *model.RunRecord {
	return &model.RunRecord{
		StartedAt: startedAt,
		StartTemp: 20,
		Target:    40,
		Mode:      mode,
		FinalTau:  tau,
		EtaModel:  "ekf",
		Samples:   42,
	}
}

func TestInsertAndRecent(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		rec := record(base.Add(time.Duration(i)*time.Hour), model.ModeHeating, 600+float64(i))
		if err := s.Insert(rec); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if rec.ID == "" {
			t.Fatal("Insert did not assign an ID")
		}
	}

	recs, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	// Newest first
	if !recs[0].StartedAt.After(recs[1].StartedAt) {
		t.Errorf("not sorted newest first: %v then %v", recs[0].StartedAt, recs[1].StartedAt)
	}
	if recs[0].FinalTau != 602 {
		t.Errorf("newest tau = %v, want 602", recs[0].FinalTau)
	}
	if recs[0].Mode != model.ModeHeating {
		t.Errorf("mode = %q, want heating", recs[0].Mode)
	}
}

func TestMedianTau(t *testing.T) {
	s := testStore(t)
	base := time.Now().UTC()

	if _, ok, err := s.MedianTau(model.ModeHeating); err != nil || ok {
		t.Errorf("empty store MedianTau = ok=%v err=%v, want ok=false", ok, err)
	}

	for i, tau := range []float64{500, 700, 600} {
		if err := s.Insert(record(base.Add(time.Duration(i)*time.Minute), model.ModeHeating, tau)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	// A cooling run must not pollute the heating median
	if err := s.Insert(record(base, model.ModeCooling, 9000)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tau, ok, err := s.MedianTau(model.ModeHeating)
	if err != nil {
		t.Fatalf("MedianTau: %v", err)
	}
	if !ok || tau != 600 {
		t.Errorf("MedianTau = (%v, %v), want (600, true)", tau, ok)
	}

	tau, ok, err = s.MedianTau(model.ModeCooling)
	if err != nil || !ok || tau != 9000 {
		t.Errorf("cooling MedianTau = (%v, %v, %v), want (9000, true, nil)", tau, ok, err)
	}
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Insert(record(time.Now().UTC(), model.ModeHeating, 600)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	recs, err := s2.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("len after reopen = %d, want 1", len(recs))
	}
}

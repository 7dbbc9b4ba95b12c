package runlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"thermoctl/pkg/model"
)

// Latest returns the path of the most recent run log in dir. The timestamp
// prefix makes lexical order chronological. Returns os.ErrNotExist when the
// directory holds no logs.
func Latest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list run logs: %w", err)
	}
	var latest string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		if e.Name() > latest {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", os.ErrNotExist
	}
	return filepath.Join(dir, latest), nil
}

// Read parses a run log file back into samples, skipping metadata lines and
// the column header.
func Read(path string) ([]model.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer f.Close()

	var samples []model.Sample
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "Timestamp,") {
			continue
		}
		s, err := parseRow(line)
		if err != nil {
			return nil, fmt.Errorf("run log %s: %w", path, err)
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read run log: %w", err)
	}
	return samples, nil
}

func parseRow(line string) (model.Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 6 {
		return model.Sample{}, fmt.Errorf("bad row %q: want 6 fields, got %d", line, len(fields))
	}

	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return model.Sample{}, fmt.Errorf("bad timestamp %q: %w", fields[0], err)
	}

	s := model.Sample{Time: ts}
	for i, dst := range []*float64{&s.Elapsed, &s.Temperature, nil, &s.Tau, &s.Progress} {
		field := fields[i+1]
		if i == 2 { // ETA is empty while the estimate is not yet available
			if field != "" {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return model.Sample{}, fmt.Errorf("bad eta %q: %w", field, err)
				}
				s.ETA = v
				s.ETAKnown = true
			}
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return model.Sample{}, fmt.Errorf("bad field %q: %w", field, err)
		}
		*dst = v
	}
	return s, nil
}

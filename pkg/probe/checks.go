package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"thermoctl/pkg/chamber"
)

// DeviceCheck verifies the chamber answers a CurOp query. It does not require
// Manual mode; the control loop negotiates that itself.
func DeviceCheck(c chamber.Client) Probe {
	return Probe{
		Name:     "chamber device",
		Critical: true,
		Check: func(ctx context.Context) error {
			op, err := c.CurrentOp(ctx)
			if err != nil {
				return err
			}
			if op == "" {
				return fmt.Errorf("device returned empty mode")
			}
			return nil
		},
	}
}

// DirWritableCheck verifies a directory exists (creating it if needed) and is
// writable.
func DirWritableCheck(name, dir string, critical bool) Probe {
	return Probe{
		Name:     name,
		Critical: critical,
		Check: func(ctx context.Context) error {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("cannot create %s: %w", dir, err)
			}
			f, err := os.CreateTemp(dir, ".probe-*")
			if err != nil {
				return fmt.Errorf("%s not writable: %w", dir, err)
			}
			name := f.Name()
			f.Close()
			return os.Remove(name)
		},
	}
}

// RunLogDirCheck verifies the per-run log directory is writable.
func RunLogDirCheck(dir string) Probe {
	return DirWritableCheck("run log directory", dir, true)
}

// HistoryDBCheck verifies the history database's directory is writable. The
// store is optional, so a failure only warns.
func HistoryDBCheck(path string) Probe {
	return DirWritableCheck("history database", filepath.Dir(path), false)
}

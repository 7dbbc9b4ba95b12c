package logging

import "sync"

// LogCaptureWriter keeps the most recently written log line so the status
// endpoint can surface what the controller last did. It deliberately holds
// one line, not a ring: the API only ever shows the latest.
type LogCaptureWriter struct {
	mu       sync.RWMutex
	lastLine string
}

// GlobalLogCapture receives a copy of every log record via the capture
// handler installed by Init.
var GlobalLogCapture = &LogCaptureWriter{}

// Write implements io.Writer.
func (w *LogCaptureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.lastLine = string(p)
	w.mu.Unlock()
	return len(p), nil
}

// LastLine returns the most recent log line, or "" before the first write.
func (w *LogCaptureWriter) LastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastLine
}

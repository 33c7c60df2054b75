// Package requestlog provides the request-logger interface an Endpoint
// hands its composed per-request log lines to, plus two concrete sinks: a
// rotating file writer for production and a no-op sink for tests.
package requestlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink is the request-logger interface consumed by Endpoint: one method
// to log a completed request's line, and a virtual clock hook so tests
// can stamp log lines deterministically.
type Sink interface {
	LogCompletedRequest(line string)
	Now() time.Time
}

// NopSink discards every line. Used by endpoints with no configured
// request-logger service, and by tests that don't care about log output.
type NopSink struct{}

// LogCompletedRequest implements Sink.
func (NopSink) LogCompletedRequest(string) {}

// Now implements Sink.
func (NopSink) Now() time.Time { return time.Now() }

// FileSink writes newline-delimited request log lines to a file named
// "<baseName>-<date>.log" under directory, where date is the current UTC
// date, switching to a new file at each UTC day boundary. It is safe for
// concurrent use by many connection goroutines.
type FileSink struct {
	directory string
	baseName  string

	mu       sync.Mutex
	file     *os.File
	openedOn string
}

// NewFileSink opens (creating if needed) the request log file under
// directory. The directory must already exist; FileSink does not create
// intermediate directories, matching the teacher's log-writer convention
// of failing fast on a misconfigured path rather than silently mkdir-ing.
func NewFileSink(directory, baseName string) (*FileSink, error) {
	if baseName == "" {
		baseName = "access"
	}
	s := &FileSink{directory: directory, baseName: baseName}
	if err := s.rotateLocked(time.Now()); err != nil {
		return nil, err
	}
	return s, nil
}

// Now implements Sink.
func (s *FileSink) Now() time.Time { return time.Now() }

// LogCompletedRequest appends line (plus a trailing newline) to the
// current log file, rotating first if the UTC date has advanced since the
// file was opened. Write errors are swallowed after a best-effort retry:
// a logging failure must never take down the connection that triggered it.
func (s *FileSink) LogCompletedRequest(line string) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.UTC().Format("2006-01-02")
	if today != s.openedOn {
		_ = s.rotateLocked(now)
	}
	if s.file == nil {
		return
	}
	if _, err := s.file.WriteString(line + "\n"); err != nil {
		_ = s.rotateLocked(now)
		if s.file != nil {
			_, _ = s.file.WriteString(line + "\n")
		}
	}
}

// rotateLocked closes the current file (if any) and opens the file for
// `now`'s UTC date. Callers must hold s.mu.
func (s *FileSink) rotateLocked(now time.Time) error {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	today := now.UTC().Format("2006-01-02")
	path := filepath.Join(s.directory, fmt.Sprintf("%s-%s.log", s.baseName, today))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("requestlog: open %s: %w", path, err)
	}
	s.file = f
	s.openedOn = today
	return nil
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// FormatLine composes the single log line an Endpoint hands to a Sink,
// matching the field order spec.md §4.4 step 6 describes: ISO-like
// timestamp, remote address, method, quoted URL, status, bytes, duration,
// error code (empty when there was none).
func FormatLine(now time.Time, remoteAddr, method, url string, status int, bytes int64, duration time.Duration, errorCode string) string {
	return fmt.Sprintf("%s %s %s %q %d %d %s %s",
		now.UTC().Format(time.RFC3339Nano),
		remoteAddr,
		method,
		url,
		status,
		bytes,
		duration,
		errorCode,
	)
}

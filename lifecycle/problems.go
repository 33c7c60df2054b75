package lifecycle

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Problem is one recorded uncaught fault: anything that escaped a task
// boundary (a panic recovered at the top of a goroutine, an unhandled
// error from a background loop).
type Problem struct {
	Time   time.Time
	Source string
	Err    error
	Fatal  bool
}

// maxProblems bounds the registry so a crash loop cannot grow it without
// limit; the oldest entries are dropped first.
const maxProblems = 256

// UncaughtProblemHandler is the last line of defense: anything that
// escapes a supervised task boundary is recorded here. Fatal problems
// write directly to stderr, wait briefly for logs to flush, and call the
// process exit hook; if that hook returns, the handler forces an exit.
type UncaughtProblemHandler struct {
	mu       sync.Mutex
	problems []Problem
	logger   *zap.Logger
	exitHook ExitHook
}

// NewUncaughtProblemHandler constructs a handler. exitHook defaults to
// os.Exit(1) when nil.
func NewUncaughtProblemHandler(logger *zap.Logger, exitHook ExitHook) *UncaughtProblemHandler {
	if exitHook == nil {
		exitHook = func() { os.Exit(1) }
	}
	return &UncaughtProblemHandler{logger: logger, exitHook: exitHook}
}

// Record appends a non-fatal problem to the registry.
func (h *UncaughtProblemHandler) Record(source string, err error) {
	h.append(Problem{Time: time.Now(), Source: source, Err: err})
	h.logger.Error("uncaught problem", zap.String("source", source), zap.Error(err))
}

// RecordFatal appends a fatal problem, flushes logs, and exits the
// process via the exit hook. If the hook returns control (it shouldn't in
// production), RecordFatal forces os.Exit(1) directly.
func (h *UncaughtProblemHandler) RecordFatal(source string, err error) {
	h.append(Problem{Time: time.Now(), Source: source, Err: err, Fatal: true})

	fmt.Fprintf(os.Stderr, "fatal: %s: %v\n", source, err)
	h.logger.Error("fatal uncaught problem", zap.String("source", source), zap.Error(err))
	_ = h.logger.Sync()

	time.Sleep(200 * time.Millisecond)
	h.exitHook()
	os.Exit(1)
}

func (h *UncaughtProblemHandler) append(p Problem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.problems = append(h.problems, p)
	if len(h.problems) > maxProblems {
		h.problems = h.problems[len(h.problems)-maxProblems:]
	}
}

// Snapshot returns a copy of the problem registry as of the call, safe to
// inspect without racing future Record calls.
func (h *UncaughtProblemHandler) Snapshot() []Problem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Problem, len(h.problems))
	copy(out, h.problems)
	return out
}

// Recover is deferred at the top of a supervised goroutine to turn a panic
// into a recorded fatal problem instead of crashing the process silently.
func (h *UncaughtProblemHandler) Recover(source string) {
	if r := recover(); r != nil {
		err, ok := r.(error)
		if !ok {
			err = fmt.Errorf("%v", r)
		}
		h.RecordFatal(source, err)
	}
}

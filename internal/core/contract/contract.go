// Package contract reports programming-contract violations inside the
// simulation core: a stale cache after rebuild, a reverse-index bucket that
// is missing an expected member, and similar states that correct callers can
// never reach.
//
// Strict mode panics so tests and debug builds (tag simdebug) stop at the
// first violation. Release builds log at error level and let the caller
// degrade to a no-op.
package contract

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

var strict atomic.Bool

func init() { strict.Store(strictDefault) }

// SetStrict switches between panicking and logging. Returns the previous mode.
func SetStrict(on bool) bool { return strict.Swap(on) }

// Strict reports whether violations panic.
func Strict() bool { return strict.Load() }

// ViolationError is the panic value used in strict mode.
type ViolationError struct {
	Msg string
}

func (e *ViolationError) Error() string { return "contract violation: " + e.Msg }

// Violation reports a broken invariant. It returns normally only in
// non-strict mode.
func Violation(log *zap.Logger, msg string, fields ...zap.Field) {
	if strict.Load() {
		panic(&ViolationError{Msg: fmt.Sprintf("%s %v", msg, fieldSummary(fields))})
	}
	if log != nil {
		log.Error("contract violation: "+msg, fields...)
	}
}

func fieldSummary(fields []zap.Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		switch {
		case f.String != "":
			out = append(out, f.Key+"="+f.String)
		default:
			out = append(out, fmt.Sprintf("%s=%d", f.Key, f.Integer))
		}
	}
	return out
}

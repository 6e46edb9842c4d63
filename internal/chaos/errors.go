package chaos

import (
	"errors"
	"fmt"

	"github.com/roach88/kvchaos/internal/store"
)

// ViolationCode categorizes fatal findings.
type ViolationCode string

const (
	// CodeStaleRead indicates the store served data more than one step
	// older than the verifier's progress.
	CodeStaleRead ViolationCode = "STALE_READ"

	// CodeValueMismatch indicates the store served the right step with the
	// wrong payload.
	CodeValueMismatch ViolationCode = "VALUE_MISMATCH"

	// CodeUnresolvedExpectation indicates predictions were still pending
	// when a verification round completed.
	CodeUnresolvedExpectation ViolationCode = "UNRESOLVED_EXPECTATION"

	// CodeWriterAhead indicates the store served a step the verifier's
	// replay has not issued yet, which correct sequencing cannot produce.
	CodeWriterAhead ViolationCode = "WRITER_AHEAD"

	// CodeRetryExhausted indicates a transient-failure budget was burned
	// to zero on a single logical operation.
	CodeRetryExhausted ViolationCode = "RETRY_EXHAUSTED"
)

// Violation is a fatal consistency finding. It is not a fault to recover
// from: the supervisor logs the full diagnostic context and terminates the
// run with a nonzero exit.
type Violation struct {
	Code    ViolationCode
	Message string

	// Diagnostic context. Reader is meaningful only for findings raised in
	// a verify path; Expected/Observed only where payloads were compared.
	Reader       uint64
	Writer       uint64
	Key          []byte
	Step         uint64
	AccessedStep uint64
	Expected     []byte
	Observed     []byte

	// Err is the underlying error for CodeRetryExhausted.
	Err error
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s (writer=%d, key=%s, step=%d, accessed_step=%d)",
		v.Code, v.Message, v.Writer, store.EncodeKey(v.Key), v.Step, v.AccessedStep)
}

func (v *Violation) Unwrap() error {
	return v.Err
}

// Fields returns the violation's diagnostic context as alternating slog
// key/value pairs.
func (v *Violation) Fields() []any {
	fields := []any{
		"code", string(v.Code),
		"reader", v.Reader,
		"writer", v.Writer,
		"key", store.EncodeKey(v.Key),
		"step", v.Step,
		"accessed_step", v.AccessedStep,
	}
	if v.Expected != nil {
		fields = append(fields, "expected", string(v.Expected))
	}
	if v.Observed != nil {
		fields = append(fields, "observed", string(v.Observed))
	}
	if v.Err != nil {
		fields = append(fields, "cause", v.Err.Error())
	}
	return fields
}

// IsViolation reports whether err is (or wraps) a fatal consistency
// finding.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

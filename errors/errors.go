package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad      Phase = "load"      // bytecode parsing and instrumentation
	PhaseHost      Phase = "host"      // host environment setup
	PhaseRuntime   Phase = "runtime"   // host calls made by a running contract
	PhaseExecute   Phase = "execute"   // orchestration around a single transaction
	PhaseProvider  Phase = "provider"  // account and storage access
	PhaseTransport Phase = "transport" // RPC framing and connections
	PhaseWire      Phase = "wire"      // wire encoding of transactions and results
)

// Kind categorizes the error
type Kind string

const (
	KindParse            Kind = "parse"
	KindGasLimit         Kind = "gas_limit"
	KindMemoryAccess     Kind = "memory_access"
	KindPanic            Kind = "panic"
	KindInvalidGasState  Kind = "invalid_gas_state"
	KindLog              Kind = "log"
	KindBadUTF8          Kind = "bad_utf8"
	KindInvalidHostIndex Kind = "invalid_host_index"
	KindWasm             Kind = "wasm"
	KindProvider         Kind = "provider"
	KindTransport        Kind = "transport"
	KindNotSupported     Kind = "not_supported"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindInstantiation    Kind = "instantiation"
	KindOverflow         Kind = "overflow"
)

// Error is the structured error type used throughout the executor
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Sentinels for errors.Is matching by kind regardless of phase.
var (
	ErrParse            = &Error{Kind: KindParse}
	ErrGasLimit         = &Error{Kind: KindGasLimit}
	ErrMemoryAccess     = &Error{Kind: KindMemoryAccess}
	ErrPanic            = &Error{Kind: KindPanic}
	ErrInvalidGasState  = &Error{Kind: KindInvalidGasState}
	ErrLog              = &Error{Kind: KindLog}
	ErrBadUTF8          = &Error{Kind: KindBadUTF8}
	ErrInvalidHostIndex = &Error{Kind: KindInvalidHostIndex}
	ErrWasm             = &Error{Kind: KindWasm}
	ErrProvider         = &Error{Kind: KindProvider}
	ErrTransport        = &Error{Kind: KindTransport}
	ErrNotSupported     = &Error{Kind: KindNotSupported}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation that failed
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Parse creates a bytecode parse error. Parse errors are terminal.
func Parse(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindParse,
		Detail: detail,
		Cause:  cause,
	}
}

// GasLimit creates an out-of-gas error
func GasLimit() *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindGasLimit,
		Detail: "gas limit exceeded",
	}
}

// MemoryAccess creates a sandbox memory access violation
func MemoryAccess(offset uint32, length uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindMemoryAccess,
		Detail: fmt.Sprintf("access of %d bytes at offset %d out of bounds", length, offset),
		Value:  offset,
	}
}

// Panic creates a contract-raised panic carrying its formatted message
func Panic(msg string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindPanic,
		Detail: msg,
	}
}

// InvalidGasState reports a broken gas accounting invariant
func InvalidGasState(counter, limit uint64) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInvalidGasState,
		Detail: fmt.Sprintf("gas counter %d exceeds limit %d", counter, limit),
	}
}

// Log creates an invalid log emission error
func Log(topics uint32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindLog,
		Detail: fmt.Sprintf("%d topics exceed the maximum of 4", topics),
		Value:  topics,
	}
}

// BadUTF8 creates an invalid UTF-8 error
func BadUTF8(data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindBadUTF8,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// InvalidHostIndex reports a host call index outside the env table
func InvalidHostIndex(index int) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindInvalidHostIndex,
		Detail: fmt.Sprintf("env module doesn't provide function at index %d", index),
		Value:  index,
	}
}

// Wasm creates an engine-level error (instantiation, numeric budget, traps)
func Wasm(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindWasm,
		Detail: detail,
		Cause:  cause,
	}
}

// Provider wraps a state access failure
func Provider(op string, cause error) *Error {
	return &Error{
		Phase: PhaseProvider,
		Kind:  KindProvider,
		Op:    op,
		Cause: cause,
	}
}

// Transport wraps an RPC or connection failure
func Transport(op string, cause error) *Error {
	return &Error{
		Phase: PhaseTransport,
		Kind:  KindTransport,
		Op:    op,
		Cause: cause,
	}
}

// NotSupported creates an unsupported operation error
func NotSupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotSupported,
		Detail: what,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseExecute,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Overflow creates a numeric overflow error
func Overflow(phase Phase, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

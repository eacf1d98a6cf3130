package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseRuntime,
				Kind:   KindMemoryAccess,
				Op:     "storage_write",
				Detail: "pointer out of bounds",
			},
			contains: []string{"[runtime]", "memory_access", "storage_write", "pointer out of bounds"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLoad,
				Kind:  KindParse,
			},
			contains: []string{"[load]", "parse"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseProvider,
				Kind:   KindProvider,
				Detail: "ledger unavailable",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[provider]", "provider", "ledger unavailable", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Transport("Provider.StorageAt", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseRuntime,
		Kind:  KindGasLimit,
	}

	if !err.Is(&Error{Phase: PhaseRuntime, Kind: KindGasLimit}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseExecute, Kind: KindGasLimit}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseRuntime, Kind: KindPanic}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrGasLimit) {
		t.Error("kind sentinel should match any phase")
	}

	wrapped := fmt.Errorf("call failed: %w", Panic("boom"))
	if !errors.Is(wrapped, ErrPanic) {
		t.Error("errors.Is should see through fmt wrapping")
	}
	var typed *Error
	if !errors.As(wrapped, &typed) || typed.Detail != "boom" {
		t.Errorf("errors.As = %v", typed)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseRuntime, KindMemoryAccess).
		Op("fetch_input").
		Value(42).
		Cause(cause).
		Detail("pointer %d beyond %d", 42, 16).
		Build()

	if err.Phase != PhaseRuntime {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseRuntime)
	}
	if err.Kind != KindMemoryAccess {
		t.Errorf("Kind = %v, want %v", err.Kind, KindMemoryAccess)
	}
	if err.Op != "fetch_input" {
		t.Errorf("Op = %v, want fetch_input", err.Op)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "pointer 42 beyond 16" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"Parse", Parse("bad magic", nil), KindParse},
		{"GasLimit", GasLimit(), KindGasLimit},
		{"MemoryAccess", MemoryAccess(65536, 32), KindMemoryAccess},
		{"Panic", Panic("overflow, src/lib.rs:1:2"), KindPanic},
		{"InvalidGasState", InvalidGasState(10, 5), KindInvalidGasState},
		{"Log", Log(5), KindLog},
		{"BadUTF8", BadUTF8([]byte{0xff, 0xfe}), KindBadUTF8},
		{"InvalidHostIndex", InvalidHostIndex(99), KindInvalidHostIndex},
		{"Wasm", Wasm("gas too large", nil), KindWasm},
		{"Provider", Provider("account", errors.New("missing")), KindProvider},
		{"Transport", Transport("dial", errors.New("refused")), KindTransport},
		{"NotSupported", NotSupported(PhaseProvider, "block_author"), KindNotSupported},
		{"Overflow", Overflow(PhaseExecute, 300, "u8"), KindOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if got := MemoryAccess(65536, 32).Detail; !strings.Contains(got, "65536") {
		t.Errorf("MemoryAccess detail %q should contain offset", got)
	}
	if got := InvalidHostIndex(99).Detail; !strings.Contains(got, "99") {
		t.Errorf("InvalidHostIndex detail %q should contain index", got)
	}
}

func TestAs(t *testing.T) {
	wrapped := fmt.Errorf("recovered: %w", Panic("boom"))
	e, ok := As(wrapped)
	if !ok {
		t.Fatal("As should find *Error in chain")
	}
	if e.Kind != KindPanic || e.Detail != "boom" {
		t.Errorf("unexpected error %+v", e)
	}
	if !Is(wrapped, ErrPanic) {
		t.Error("Is should match ErrPanic through wrapping")
	}
	if _, ok := As(fmt.Errorf("plain")); ok {
		t.Error("As should not match plain errors")
	}
}

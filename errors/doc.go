// Package errors provides structured error types for the contract executor.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the failing operation, a detail message and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRuntime, errors.KindMemoryAccess).
//		Op("storage_write").
//		Detail("key pointer %d out of bounds", ptr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.GasLimit()
//	err := errors.Provider("storage_at", cause)
//
// Kind sentinels (ErrGasLimit, ErrMemoryAccess, ...) match any phase with errors.Is.
// All errors implement the standard error interface and support errors.Is/As.
package errors

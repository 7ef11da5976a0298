// Package signerrors defines the sentinel error taxonomy shared by every
// core component, and the HTTP status mapping applied at the response
// boundary: package sentinel errors plus a wrapping type that preserves
// operation context via Unwrap/Is.
package signerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors, one per failure kind the core can produce.
var (
	// ErrIncomplete means more bytes are needed; not a terminal failure.
	ErrIncomplete = errors.New("signer: incomplete request")

	// ErrBadRequest covers malformed HTTP, unknown POST path, malformed
	// JSON, wrong field types, oversized bodies, and too many headers.
	ErrBadRequest = errors.New("signer: bad request")

	// ErrNotFound means the requested signing public key is not in the keystore.
	ErrNotFound = errors.New("signer: public key not found")

	// ErrBadPassword means the EIP-2335 checksum did not match.
	ErrBadPassword = errors.New("signer: bad password")

	// ErrBadJSONFormat means an EIP-2335 field was missing or the wrong type.
	ErrBadJSONFormat = errors.New("signer: bad keystore json format")

	// ErrKdfTooExpensive means scrypt parameters exceed the configured ceiling.
	ErrKdfTooExpensive = errors.New("signer: kdf parameters too expensive")

	// ErrFull means the keystore is at capacity.
	ErrFull = errors.New("signer: keystore full")

	// ErrDuplicateSecret means the secret scalar already exists in the keystore.
	ErrDuplicateSecret = errors.New("signer: duplicate secret")

	// ErrRNG means the hardware RNG collaborator failed.
	ErrRNG = errors.New("signer: rng failure")

	// ErrInternal is for primitive failures that should not normally occur.
	ErrInternal = errors.New("signer: internal error")
)

// OpError wraps a sentinel error with the operation that produced it.
type OpError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *OpError) Unwrap() error {
	return e.Err
}

// Wrap attaches an operation name to err. Returns nil if err is nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// StatusFor maps a core error to the HTTP status returned at the
// response boundary. Every import-pipeline failure (BadPassword,
// BadJSONFormat, KdfTooExpensive, Full, DuplicateSecret, RNG, Internal)
// collapses to 400 on purpose: the wire protocol must not leak which step
// failed. NotFound is the only sentinel that earns its own status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case err == nil:
		return http.StatusOK
	default:
		return http.StatusBadRequest
	}
}

// internal/sealing/handle.go
//
// Opaque sealed tile values.
// A Handle is what the grid stores instead of a plain integer. Only this
// package can look inside one; every other package goes through Sealer.Unseal.

package sealing

import "bytes"

// Scheme identifies the provider family that produced a Handle.
type Scheme uint8

const (
	SchemeNone Scheme = iota // zero Handle, i.e. an empty cell
	SchemeMock               // transparent pass-through
	SchemeAEAD               // XChaCha20-Poly1305 ciphertext
)

func (s Scheme) String() string {
	switch s {
	case SchemeNone:
		return "none"
	case SchemeMock:
		return "mock"
	case SchemeAEAD:
		return "aead"
	default:
		return "unknown"
	}
}

// Handle is an opaque sealed value. The zero Handle represents an empty cell.
// Handles are immutable once created and safe to copy.
type Handle struct {
	scheme  Scheme
	payload []byte
}

// IsZero reports whether h is the empty handle.
func (h Handle) IsZero() bool { return h.scheme == SchemeNone }

// Scheme reports which provider family sealed h.
func (h Handle) Scheme() Scheme { return h.scheme }

// Equal reports whether h and o are the same sealed payload.
// Two seals of the same plaintext under AEAD are never Equal.
func (h Handle) Equal(o Handle) bool {
	return h.scheme == o.scheme && bytes.Equal(h.payload, o.payload)
}

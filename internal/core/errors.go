// Package core defines sentinel errors and the failure taxonomy of a link round.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per recoverable failure kind.
var (
	// ErrStoreUnavailable: the configuration store cannot be reached or an operation on it failed.
	ErrStoreUnavailable = errors.New("openob: configuration store unavailable")
	// ErrNegotiationIncomplete: link parameters are absent, partial or malformed.
	ErrNegotiationIncomplete = errors.New("openob: link not yet configured")
	// ErrEngineFailure: the transport engine failed to start or terminated.
	ErrEngineFailure = errors.New("openob: transport engine failure")

	// ErrConfigInvalid is returned by configuration validation.
	ErrConfigInvalid = errors.New("openob: invalid configuration")
	// ErrEngineNotFound is returned when no engine factory is registered under a name.
	ErrEngineNotFound = errors.New("openob: transport engine not found")
)

// Kind classifies a failure so the manager can decide how to recover.
type Kind int

const (
	// KindUnclassified is anything the manager does not know how to recover from.
	KindUnclassified Kind = iota
	KindStoreUnavailable
	KindNegotiationIncomplete
	KindEngineFailure
)

func (k Kind) String() string {
	switch k {
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindNegotiationIncomplete:
		return "negotiation_incomplete"
	case KindEngineFailure:
		return "engine_failure"
	default:
		return "unclassified"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindStoreUnavailable:
		return ErrStoreUnavailable
	case KindNegotiationIncomplete:
		return ErrNegotiationIncomplete
	case KindEngineFailure:
		return ErrEngineFailure
	default:
		return nil
	}
}

// LinkError tags an underlying error with its Kind and the operation that failed.
type LinkError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *LinkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so errors.Is(err, ErrEngineFailure) works
// without the sentinel being part of the wrapped chain.
func (e *LinkError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// StoreUnavailable wraps err as a KindStoreUnavailable failure of op.
func StoreUnavailable(op string, err error) error {
	return &LinkError{Kind: KindStoreUnavailable, Op: op, Err: err}
}

// NegotiationIncomplete wraps err as a KindNegotiationIncomplete failure of op.
func NegotiationIncomplete(op string, err error) error {
	return &LinkError{Kind: KindNegotiationIncomplete, Op: op, Err: err}
}

// EngineFailure wraps err as a KindEngineFailure failure of op.
func EngineFailure(op string, err error) error {
	return &LinkError{Kind: KindEngineFailure, Op: op, Err: err}
}

// KindOf returns the kind of the first LinkError in err's chain.
func KindOf(err error) Kind {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnclassified
}

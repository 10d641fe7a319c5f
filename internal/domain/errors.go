package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// VerificationKind classifies why an envelope failed verification. Callers
// must be able to tell the cases apart: an expired envelope is answered with
// "ask for a fresh QR" while a tampered one is a security incident.
type VerificationKind int

const (
	KindMalformedEnvelope VerificationKind = iota
	KindUnsupportedVersion
	KindExpiredEnvelope
	KindTamperedSignature
)

func (k VerificationKind) String() string {
	switch k {
	case KindMalformedEnvelope:
		return "malformed envelope"
	case KindUnsupportedVersion:
		return "unsupported envelope version"
	case KindExpiredEnvelope:
		return "envelope has expired"
	case KindTamperedSignature:
		return "envelope signature mismatch"
	default:
		return "verification failed"
	}
}

// VerificationError is the typed result of a failed envelope verification.
// It is always returned as a value, never panicked.
type VerificationError struct {
	Kind   VerificationKind
	Reason string
}

func (e *VerificationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return e.Kind.String()
}

// Is matches on Kind so callers can use errors.Is with the sentinels below.
func (e *VerificationError) Is(target error) bool {
	t, ok := target.(*VerificationError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformedEnvelope  = &VerificationError{Kind: KindMalformedEnvelope}
	ErrUnsupportedVersion = &VerificationError{Kind: KindUnsupportedVersion}
	ErrExpiredEnvelope    = &VerificationError{Kind: KindExpiredEnvelope}
	ErrTamperedSignature  = &VerificationError{Kind: KindTamperedSignature}
)

// Sentinels for the realtime layer and scan pipeline.
var (
	ErrUnauthenticated     = fmt.Errorf("authentication required")
	ErrTransportClosed     = fmt.Errorf("transport closed")
	ErrSlowConsumer        = fmt.Errorf("outbound queue overflow")
	ErrEnvelopeInvalidated = fmt.Errorf("envelope has been invalidated")
	ErrNotOwner            = fmt.Errorf("requester does not own this resource")
)

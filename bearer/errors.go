package bearer

import "errors"

var (
	// ErrMalformed is returned when the token cannot be decoded or lacks exp
	ErrMalformed = errors.New("malformed token")

	// ErrBadSignature is returned for a disallowed algorithm, an unknown key id or a signature mismatch
	ErrBadSignature = errors.New("bad token signature")

	// ErrIssuerMismatch is returned when iss differs from the configured issuer
	ErrIssuerMismatch = errors.New("issuer mismatch")

	// ErrExpired is returned when exp lies before now minus the allowed skew
	ErrExpired = errors.New("token expired")

	// ErrNotYetValid is returned when nbf lies after now plus the allowed skew
	ErrNotYetValid = errors.New("token not yet valid")

	// ErrAudienceMismatch is returned when aud is absent or does not contain the configured audience
	ErrAudienceMismatch = errors.New("audience mismatch")

	// ErrMissingSubject is returned when the user-name claim is absent or empty
	ErrMissingSubject = errors.New("missing subject")

	// ErrKeySourceUnavailable is returned when the key set cannot be fetched
	ErrKeySourceUnavailable = errors.New("key source unavailable")

	// ErrUnknownKey is returned when no key with the requested id exists, even after a refresh
	ErrUnknownKey = errors.New("unknown key id")
)

// Reason returns a short, stable label for a validation error, used for
// metrics and log fields.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrKeySourceUnavailable):
		return "key_source_unavailable"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrIssuerMismatch):
		return "issuer_mismatch"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrAudienceMismatch):
		return "audience_mismatch"
	case errors.Is(err, ErrMissingSubject):
		return "missing_subject"
	default:
		return "unknown"
	}
}

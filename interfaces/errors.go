package interfaces

import "errors"

// Error taxonomy of the integrity core. Every failure path surfaces one of
// these sentinels (usually wrapped with context); verification and integrity
// failures are never collapsed into a default "ok".
var (
	// ErrCanonicalization is returned when a document cannot be
	// canonicalized, typically because a required header field is absent or
	// malformed. Fatal, not retried.
	ErrCanonicalization = errors.New("canonicalization failed")

	// ErrDigestMismatch is returned when a recomputed digest does not match
	// the stored or signed one. Signals tampering or corruption.
	ErrDigestMismatch = errors.New("digest mismatch")

	// ErrSignatureInvalid is returned when the digest matched but the
	// cryptographic check failed. Signals a forged or corrupted signature;
	// fatal for the verification attempt.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrKeyResolution is returned when the signer's public key cannot be
	// resolved. Recoverable: the caller may retry against another key
	// source. A verification that hits this is "unverified", not "invalid".
	ErrKeyResolution = errors.New("key resolution failed")

	// ErrAlgorithmUnsupported is returned for a signing algorithm outside
	// the fixed supported set.
	ErrAlgorithmUnsupported = errors.New("signing algorithm unsupported")

	// ErrStaleTerms is returned when an agreement signature was computed
	// against a terms digest that no longer matches the document.
	ErrStaleTerms = errors.New("agreement terms have changed since signing")

	// ErrAgentNotAuthorized is returned when an agent outside the required
	// signer set attempts to mutate an agreement.
	ErrAgentNotAuthorized = errors.New("agent not authorized")

	// ErrStanceRecorded is returned when an agent who already signed or
	// refused the current terms attempts to record another stance. A stance
	// is irrevocable for a given terms digest; only a terms change clears it.
	ErrStanceRecorded = errors.New("stance already recorded for these terms")

	// ErrVersionConflict is returned when two updates claim the same
	// previous version. The caller decides the retry/merge policy.
	ErrVersionConflict = errors.New("version conflict")

	// ErrSchemaValidation is propagated from the external schema validator.
	// Fatal for create/update.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrDocumentNotFound is returned when a document or version does not
	// exist in a storage backend.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible due to network issues, authentication failures, or outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrChainCycle is returned when version history traversal revisits a
	// version. A version chain must be a simple linked list, never a loop.
	ErrChainCycle = errors.New("version chain contains a cycle")

	// ErrChainOrphan is returned when a previous-version link does not
	// resolve to a stored version. A structural error, not a silent gap.
	ErrChainOrphan = errors.New("version chain link does not resolve")
)

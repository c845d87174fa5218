package interfaces

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Header field names of the JACS document wire format. Canonicalization,
// hashing and signing operate on these names; payload fields are free-form.
const (
	FieldSchema          = "$schema"
	FieldID              = "jacsId"
	FieldVersion         = "jacsVersion"
	FieldVersionDate     = "jacsVersionDate"
	FieldOriginalVersion = "jacsOriginalVersion"
	FieldOriginalDate    = "jacsOriginalDate"
	FieldPreviousVersion = "jacsPreviousVersion"
	FieldType            = "jacsType"
	FieldLevel           = "jacsLevel"
	FieldSha256          = "jacsSha256"
	FieldSignature       = "jacsSignature"
	FieldRegistration    = "jacsRegistration"
	FieldAgreement       = "jacsAgreement"
	FieldAgreementHash   = "jacsAgreementHash"
	FieldFiles           = "jacsFiles"
	FieldEmbedding       = "jacsEmbedding"
)

// RequiredHeaderFields must be present before a document may be hashed or
// signed. FieldPreviousVersion is deliberately absent: the first version of a
// document has none.
var RequiredHeaderFields = []string{
	FieldSchema,
	FieldID,
	FieldVersion,
	FieldVersionDate,
	FieldOriginalVersion,
	FieldOriginalDate,
	FieldType,
	FieldLevel,
}

// DocumentID is the stable identity of a document, immutable across versions.
type DocumentID string

// VersionID identifies a single revision of a document.
type VersionID string

// AgentID identifies a signing agent.
type AgentID string

// NewDocumentID returns a fresh random document identity.
func NewDocumentID() DocumentID {
	return DocumentID(uuid.Must(uuid.NewRandom()).String())
}

// NewVersionID returns a fresh random version identifier.
func NewVersionID() VersionID {
	return VersionID(uuid.Must(uuid.NewRandom()).String())
}

func (id DocumentID) String() string { return string(id) }
func (id VersionID) String() string  { return string(id) }
func (id AgentID) String() string    { return string(id) }

// Validate checks the identifier is a well-formed UUID.
func (id DocumentID) Validate() error {
	_, err := uuid.Parse(string(id))
	return err
}

// Validate checks the identifier is a well-formed UUID.
func (id VersionID) Validate() error {
	_, err := uuid.Parse(string(id))
	return err
}

// Validate checks the identifier is a well-formed UUID.
func (id AgentID) Validate() error {
	_, err := uuid.Parse(string(id))
	return err
}

// DocumentLevel tags the provenance class of a document.
type DocumentLevel string

const (
	LevelRaw      DocumentLevel = "raw"
	LevelConfig   DocumentLevel = "config"
	LevelArtifact DocumentLevel = "artifact"
	LevelDerived  DocumentLevel = "derived"
)

// Validate checks the level is one of the enumerated values.
func (l DocumentLevel) Validate() error {
	switch l {
	case LevelRaw, LevelConfig, LevelArtifact, LevelDerived:
		return nil
	default:
		return fmt.Errorf("invalid document level: %q", string(l))
	}
}

// SigningAlgorithm enumerates the closed set of supported signature schemes.
// The set is fixed so verification can match exhaustively; an algorithm is
// always chosen at signing time and recorded in the signature, never inferred
// during verification.
type SigningAlgorithm string

const (
	// AlgorithmRSAPSS is RSA-PSS over SHA-256 with a 2048-bit minimum modulus.
	AlgorithmRSAPSS SigningAlgorithm = "RSA-PSS"

	// AlgorithmEd25519 is Ed25519 as produced by the reference implementation.
	AlgorithmEd25519 SigningAlgorithm = "ring-Ed25519"

	// AlgorithmDilithium is the pre-standard Dilithium2 lattice scheme.
	AlgorithmDilithium SigningAlgorithm = "pq-dilithium"

	// AlgorithmMLDSA is FIPS 204 ML-DSA-44.
	AlgorithmMLDSA SigningAlgorithm = "pq2025"
)

// Validate checks the algorithm is one of the supported schemes.
func (a SigningAlgorithm) Validate() error {
	switch a {
	case AlgorithmRSAPSS, AlgorithmEd25519, AlgorithmDilithium, AlgorithmMLDSA:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrAlgorithmUnsupported, string(a))
	}
}

// ParseSigningAlgorithm resolves a wire string to a supported algorithm.
func ParseSigningAlgorithm(s string) (SigningAlgorithm, error) {
	a := SigningAlgorithm(strings.TrimSpace(s))
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}

// Digest is a 32-byte SHA-256 digest over canonicalized content.
type Digest [32]byte

// ComputeDigest hashes data with SHA-256.
func ComputeDigest(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// NewDigestFromHex parses a 64-character lowercase hex digest.
func NewDigestFromHex(s string) (Digest, error) {
	if len(s) != 64 {
		return Digest{}, errors.New("invalid digest length: hex string must be 64 characters")
	}
	if s != strings.ToLower(s) {
		return Digest{}, errors.New("invalid digest encoding: must be lowercase hex")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid hex format: %w", err)
	}
	var d Digest
	copy(d[:], raw)
	return d, nil
}

// String returns the lowercase hex representation.
func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Bytes returns the raw 32-byte digest.
func (d Digest) Bytes() []byte { return d[:] }

// Equal compares two digests.
func (d Digest) Equal(other Digest) bool { return bytes.Equal(d[:], other[:]) }

// PublicKeyHash is the SHA-256 digest of an agent's encoded public key.
// It is embedded in signatures so verifiers can detect a key mismatch before
// attempting cryptographic verification.
type PublicKeyHash [32]byte

// HashPublicKey computes the hash of an encoded public key.
func HashPublicKey(pub PublicKey) PublicKeyHash {
	return PublicKeyHash(sha256.Sum256(pub))
}

// NewPublicKeyHashFromHex parses a 64-character hex key hash.
func NewPublicKeyHashFromHex(s string) (PublicKeyHash, error) {
	d, err := NewDigestFromHex(s)
	if err != nil {
		return PublicKeyHash{}, err
	}
	return PublicKeyHash(d), nil
}

// String returns the lowercase hex representation.
func (h PublicKeyHash) String() string { return hex.EncodeToString(h[:]) }

// Equal compares two key hashes.
func (h PublicKeyHash) Equal(other PublicKeyHash) bool { return h == other }

// ResponseType tags a signature's stance toward a document's terms.
type ResponseType string

const (
	ResponseAgree    ResponseType = "agree"
	ResponseDisagree ResponseType = "disagree"
	ResponseReject   ResponseType = "reject"
)

// Validate checks the response type is one of the enumerated values.
func (rt ResponseType) Validate() error {
	switch rt {
	case ResponseAgree, ResponseDisagree, ResponseReject:
		return nil
	default:
		return fmt.Errorf("invalid response type: %q", string(rt))
	}
}

// Signature is the wire representation of a signature over a document's
// covered fields. Fields records the exact field-name list the digest was
// computed over; verification always recomputes from that list rather than a
// fresh canonicalizer run.
type Signature struct {
	AgentID          string           `json:"agentID"`
	AgentVersion     string           `json:"agentVersion"`
	Date             string           `json:"date"`
	Signature        string           `json:"signature"`
	PublicKeyHash    string           `json:"publicKeyHash"`
	SigningAlgorithm SigningAlgorithm `json:"signingAlgorithm"`
	Fields           []string         `json:"fields"`
	Response         string           `json:"response,omitempty"`
	ResponseType     ResponseType     `json:"responseType,omitempty"`
}

// Validate checks the structural completeness of a signature record.
func (s Signature) Validate() error {
	if s.AgentID == "" {
		return errors.New("signature missing agentID")
	}
	if s.Signature == "" {
		return errors.New("signature missing signature value")
	}
	if s.PublicKeyHash == "" {
		return errors.New("signature missing publicKeyHash")
	}
	if len(s.Fields) == 0 {
		return errors.New("signature missing covered fields")
	}
	if err := s.SigningAlgorithm.Validate(); err != nil {
		return err
	}
	if s.ResponseType != "" {
		return s.ResponseType.Validate()
	}
	return nil
}

// AgreementRecord tracks multi-party consent over a document's terms.
// AgentIDs is the required signer set; Signatures holds one entry per signer
// who agreed, Disagreements one signed refusal per signer who did not.
type AgreementRecord struct {
	AgentIDs      []string    `json:"agentIDs"`
	Signatures    []Signature `json:"signatures"`
	Disagreements []Signature `json:"disagreements,omitempty"`
	Question      string      `json:"question,omitempty"`
	Context       string      `json:"context,omitempty"`
}

// AgreementState is derived from an AgreementRecord, never stored.
type AgreementState int

const (
	// AgreementDraft: no signatures, no disagreements.
	AgreementDraft AgreementState = iota
	// AgreementPartial: some but not all required signers signed.
	AgreementPartial
	// AgreementFull: every required signer signed the current terms.
	AgreementFull
	// AgreementContested: at least one disagreement, no signatures.
	AgreementContested
	// AgreementMixed: both signatures and disagreements present.
	AgreementMixed
)

// String returns the state name.
func (s AgreementState) String() string {
	switch s {
	case AgreementDraft:
		return "draft"
	case AgreementPartial:
		return "partially-agreed"
	case AgreementFull:
		return "fully-agreed"
	case AgreementContested:
		return "contested"
	case AgreementMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

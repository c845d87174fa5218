// Package signing produces and checks signature records over canonicalized
// document fields. The supported algorithm set is closed (RSA-PSS, Ed25519,
// Dilithium2, ML-DSA-44); the algorithm is chosen at signing time and
// recorded in the signature, and verification dispatches exhaustively on the
// recorded value.
package signing

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jacsproject/jacs-go/canonical"
	"github.com/jacsproject/jacs-go/interfaces"
)

// AgentContext identifies the agent on whose behalf an operation runs and
// carries its key material source. It replaces any ambient "active agent"
// state: callers construct one per agent and pass it into every sign call,
// which keeps concurrent use across independent agents straightforward.
type AgentContext struct {
	AgentID      interfaces.AgentID
	AgentVersion interfaces.VersionID
	Algorithm    interfaces.SigningAlgorithm
	Keys         interfaces.KeyProvider
}

// Validate checks the context is complete.
func (a AgentContext) Validate() error {
	if a.AgentID == "" {
		return fmt.Errorf("agent context missing agent id")
	}
	if a.Keys == nil {
		return fmt.Errorf("agent context missing key provider")
	}
	return a.Algorithm.Validate()
}

// Sign computes a signature by agent over the named fields of doc.
// The private key handle is scoped to this call and destroyed before return.
func Sign(ctx context.Context, agent AgentContext, doc map[string]any, fields []string) (interfaces.Signature, error) {
	return sign(ctx, agent, doc, fields, "", "")
}

// Reserved field names under which a signature's response and stance are
// folded into the signed content. They never appear in stored documents;
// Sign and Verify inject them into a working copy so that the response text
// itself is covered by the signature and cannot be altered afterwards.
const (
	responseField     = "jacsSignatureResponse"
	responseTypeField = "jacsSignatureResponseType"
)

// SignResponse is Sign with an attached response. Used by the agreement
// engine to record consent ("agree") and signed refusals ("disagree",
// "reject"). The response text and stance are part of the signed content.
func SignResponse(ctx context.Context, agent AgentContext, doc map[string]any, fields []string, response string, responseType interfaces.ResponseType) (interfaces.Signature, error) {
	if err := responseType.Validate(); err != nil {
		return interfaces.Signature{}, err
	}
	return sign(ctx, agent, doc, fields, response, responseType)
}

// withResponse folds a response into a copy of doc under the reserved names
// and returns the copy together with the extended covered-field list.
func withResponse(doc map[string]any, fields []string, response string, responseType interfaces.ResponseType) (map[string]any, []string) {
	signDoc := make(map[string]any, len(doc)+2)
	for k, v := range doc {
		signDoc[k] = v
	}
	signDoc[responseField] = response
	signDoc[responseTypeField] = string(responseType)

	covered := make([]string, 0, len(fields)+2)
	covered = append(covered, fields...)
	covered = append(covered, responseField, responseTypeField)
	return signDoc, covered
}

func sign(ctx context.Context, agent AgentContext, doc map[string]any, fields []string, response string, responseType interfaces.ResponseType) (interfaces.Signature, error) {
	if err := agent.Validate(); err != nil {
		return interfaces.Signature{}, err
	}
	if len(fields) == 0 {
		return interfaces.Signature{}, fmt.Errorf("%w: empty covered-field list", interfaces.ErrCanonicalization)
	}

	if responseType != "" {
		doc, fields = withResponse(doc, fields, response, responseType)
	}

	digest, err := canonical.DigestFields(doc, fields)
	if err != nil {
		return interfaces.Signature{}, err
	}

	_, keyHash, err := agent.Keys.Resolve(ctx, agent.AgentID)
	if err != nil {
		return interfaces.Signature{}, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}

	handle, err := agent.Keys.SigningKey(ctx, agent.AgentID)
	if err != nil {
		return interfaces.Signature{}, fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}
	defer handle.Destroy()

	if handle.Algorithm() != agent.Algorithm {
		return interfaces.Signature{}, fmt.Errorf("%w: key is %q, agent context wants %q",
			interfaces.ErrAlgorithmUnsupported, handle.Algorithm(), agent.Algorithm)
	}

	var sigBytes []byte
	err = handle.Use(func(key []byte) error {
		var signErr error
		sigBytes, signErr = signDigest(agent.Algorithm, key, digest.Bytes())
		return signErr
	})
	if err != nil {
		return interfaces.Signature{}, fmt.Errorf("signing failed: %w", err)
	}

	covered := make([]string, len(fields))
	copy(covered, fields)

	return interfaces.Signature{
		AgentID:          agent.AgentID.String(),
		AgentVersion:     agent.AgentVersion.String(),
		Date:             time.Now().UTC().Format(time.RFC3339),
		Signature:        base64.StdEncoding.EncodeToString(sigBytes),
		PublicKeyHash:    keyHash.String(),
		SigningAlgorithm: agent.Algorithm,
		Fields:           covered,
		Response:         response,
		ResponseType:     responseType,
	}, nil
}

// Verify checks a signature record against the current content of doc.
//
// The digest is recomputed from the signature's own covered-field list, not
// a fresh canonicalizer run, so later schema changes cannot silently change
// what "the signed content" means. The resolved public key's hash must match
// the embedded one before any cryptographic check runs.
//
// Failure modes are distinct: an error wrapping ErrKeyResolution means the
// document could not be verified (retry with another key source may help);
// ErrSignatureInvalid means verification ran and failed.
func Verify(ctx context.Context, keys interfaces.KeyProvider, doc map[string]any, sig interfaces.Signature) error {
	if err := sig.Validate(); err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrSignatureInvalid, err)
	}

	checkDoc := doc
	if sig.ResponseType != "" {
		checkDoc = make(map[string]any, len(doc)+2)
		for k, v := range doc {
			checkDoc[k] = v
		}
		checkDoc[responseField] = sig.Response
		checkDoc[responseTypeField] = string(sig.ResponseType)
	}

	digest, err := canonical.DigestFields(checkDoc, sig.Fields)
	if err != nil {
		return err
	}

	publicKey, keyHash, err := keys.Resolve(ctx, interfaces.AgentID(sig.AgentID))
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrKeyResolution, err)
	}

	claimedHash, err := interfaces.NewPublicKeyHashFromHex(sig.PublicKeyHash)
	if err != nil {
		return fmt.Errorf("%w: malformed publicKeyHash: %v", interfaces.ErrSignatureInvalid, err)
	}
	if subtle.ConstantTimeCompare(claimedHash[:], keyHash[:]) != 1 {
		return fmt.Errorf("%w: resolved key does not match signature publicKeyHash", interfaces.ErrKeyResolution)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding", interfaces.ErrSignatureInvalid)
	}

	return verifyDigest(sig.SigningAlgorithm, publicKey, digest.Bytes(), sigBytes)
}

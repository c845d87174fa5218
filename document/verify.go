package document

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jacsproject/jacs-go/agreement"
	"github.com/jacsproject/jacs-go/canonical"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
)

// VerifyResult reports what a verification run established. Err carries the
// first failure; Verified is true only when every present integrity artifact
// checked out. A false Verified with an error wrapping ErrKeyResolution
// means "could not verify" (the key source failed), not "verification
// failed"; callers needing the distinction test the error.
type VerifyResult struct {
	Verified bool

	DigestOK          bool
	SignatureOK       bool
	RegistrationFound bool
	RegistrationOK    bool
	AgreementFound    bool
	AgreementState    interfaces.AgreementState
	Err               error
}

// Verify checks every integrity artifact the document carries: the header
// contract, the integrity digest, the author's signature, and, when
// present, the registration countersignature and the agreement record.
// Verification never mutates doc and is safe to run concurrently with other
// verifications of the same document.
func (e *Engine) Verify(ctx context.Context, keys interfaces.KeyProvider, doc map[string]any) VerifyResult {
	fail := func(err error) VerifyResult {
		return VerifyResult{Err: err}
	}

	if err := e.validator.Validate(doc, schemaRef(doc)); err != nil {
		return fail(err)
	}

	result := VerifyResult{}

	// Integrity digest: recompute over current content, compare to stored.
	stored, ok := doc[interfaces.FieldSha256].(string)
	if !ok || stored == "" {
		return fail(fmt.Errorf("%w: document carries no integrity digest", interfaces.ErrDigestMismatch))
	}
	storedDigest, err := interfaces.NewDigestFromHex(stored)
	if err != nil {
		return fail(fmt.Errorf("%w: malformed integrity digest: %v", interfaces.ErrDigestMismatch, err))
	}
	current, _, err := canonical.HashDocument(doc, canonical.ModeDigest)
	if err != nil {
		return fail(err)
	}
	if !current.Equal(storedDigest) {
		return fail(fmt.Errorf("%w: content digests to %s, document claims %s", interfaces.ErrDigestMismatch, current, storedDigest))
	}
	result.DigestOK = true

	// Author signature.
	sig, found, err := getSignature(doc, interfaces.FieldSignature)
	if err != nil {
		result.Err = err
		return result
	}
	if !found {
		result.Err = fmt.Errorf("%w: document carries no signature", interfaces.ErrSignatureInvalid)
		return result
	}
	if err := signing.Verify(ctx, keys, doc, sig); err != nil {
		result.Err = err
		return result
	}
	result.SignatureOK = true

	// Registration countersignature, when present.
	reg, found, err := getSignature(doc, interfaces.FieldRegistration)
	if err != nil {
		result.Err = err
		return result
	}
	if found {
		result.RegistrationFound = true
		if err := signing.Verify(ctx, keys, doc, reg); err != nil {
			result.Err = fmt.Errorf("registration: %w", err)
			return result
		}
		result.RegistrationOK = true
	}

	// Agreement record, when present.
	if _, hasAgreement, err := agreement.Record(doc); err != nil {
		result.Err = err
		return result
	} else if hasAgreement {
		result.AgreementFound = true
		state, err := agreement.Verify(ctx, keys, doc, e.statusFields[docType(doc)])
		if err != nil {
			result.Err = err
			return result
		}
		result.AgreementState = state
	}

	result.Verified = true
	return result
}

// Register countersigns doc as the attesting authority and reseals the
// integrity digest. The registration covers the same field scope as the
// author signature and sits beside it, never replacing it.
func (e *Engine) Register(ctx context.Context, attester signing.AgentContext, doc map[string]any) error {
	if _, found, err := getSignature(doc, interfaces.FieldSignature); err != nil {
		return err
	} else if !found {
		return fmt.Errorf("%w: cannot register an unsigned document", interfaces.ErrSignatureInvalid)
	}

	signFields, err := canonical.Fields(doc, canonical.ModeSign)
	if err != nil {
		return err
	}
	reg, err := signing.Sign(ctx, attester, doc, signFields)
	if err != nil {
		return err
	}
	if err := putSignature(doc, interfaces.FieldRegistration, reg); err != nil {
		return err
	}

	e.log.Info("Registered document",
		slog.String("doc_id", fmt.Sprint(doc[interfaces.FieldID])),
		slog.String("attester_id", attester.AgentID.String()))
	return nil
}

// ProposeAgreement attaches an agreement over the document's current terms.
// The agreement hash is digest-covered, so the integrity digest is resealed.
func (e *Engine) ProposeAgreement(ctx context.Context, doc map[string]any, agentIDs []string, question, agreementContext string) error {
	if err := agreement.Propose(doc, agentIDs, question, agreementContext, e.statusFields[docType(doc)]); err != nil {
		return err
	}
	return e.rehash(doc)
}

// SignAgreement records agent's consent to the current terms. The agreement
// body is outside the digest scope, so no reseal is needed.
func (e *Engine) SignAgreement(ctx context.Context, agent signing.AgentContext, doc map[string]any) error {
	return agreement.Sign(ctx, agent, doc, e.statusFields[docType(doc)])
}

// DisagreeAgreement records agent's signed refusal of the current terms.
func (e *Engine) DisagreeAgreement(ctx context.Context, agent signing.AgentContext, doc map[string]any, reason string) error {
	return agreement.Disagree(ctx, agent, doc, reason, e.statusFields[docType(doc)])
}

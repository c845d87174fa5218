package agreement

import (
	"context"
	"fmt"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
)

// State derives the agreement state from a record. Refusals dominate:
// any disagreement makes the agreement contested (or mixed when consents
// are also present), regardless of how many signers agreed.
func State(record interfaces.AgreementRecord) interfaces.AgreementState {
	hasSignatures := len(record.Signatures) > 0
	hasDisagreements := len(record.Disagreements) > 0

	switch {
	case hasSignatures && hasDisagreements:
		return interfaces.AgreementMixed
	case hasDisagreements:
		return interfaces.AgreementContested
	case !hasSignatures:
		return interfaces.AgreementDraft
	}

	signed := make(map[string]struct{}, len(record.Signatures))
	for _, sig := range record.Signatures {
		signed[sig.AgentID] = struct{}{}
	}
	for _, id := range record.AgentIDs {
		if _, ok := signed[id]; !ok {
			return interfaces.AgreementPartial
		}
	}
	return interfaces.AgreementFull
}

// Verify checks the agreement attached to doc and returns its state.
//
// Every collected signature and disagreement must verify cryptographically
// against the document's current content, every entry must come from a
// required signer, and the bound terms digest must match the current terms
// (otherwise the error wraps interfaces.ErrStaleTerms). Only a verified
// fully-agreed state is a safe basis for deriving a dependent status.
func Verify(ctx context.Context, keys interfaces.KeyProvider, doc map[string]any, statusFields []string) (interfaces.AgreementState, error) {
	record, ok, err := Record(doc)
	if err != nil {
		return interfaces.AgreementDraft, err
	}
	if !ok {
		return interfaces.AgreementDraft, fmt.Errorf("document has no agreement")
	}

	stale, err := Stale(doc, statusFields)
	if err != nil {
		return interfaces.AgreementDraft, err
	}
	if stale {
		return interfaces.AgreementDraft, fmt.Errorf("%w: terms changed since the agreement was proposed", interfaces.ErrStaleTerms)
	}

	members := make(map[string]struct{}, len(record.AgentIDs))
	for _, id := range record.AgentIDs {
		members[id] = struct{}{}
	}

	for _, sig := range append(append([]interfaces.Signature(nil), record.Signatures...), record.Disagreements...) {
		if _, ok := members[sig.AgentID]; !ok {
			return interfaces.AgreementDraft, fmt.Errorf("%w: entry from non-signer %s", interfaces.ErrAgentNotAuthorized, sig.AgentID)
		}
		if err := signing.Verify(ctx, keys, doc, sig); err != nil {
			return interfaces.AgreementDraft, fmt.Errorf("agreement entry from %s: %w", sig.AgentID, err)
		}
	}

	return State(record), nil
}

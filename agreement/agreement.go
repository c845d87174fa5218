// Package agreement derives and mutates multi-party consent over a
// document's substantive terms. An agreement names the required signer set
// and accumulates signed consents and signed refusals; its state is always
// recomputed from the record, never stored. Consent binds to a terms digest,
// so any change to the substantive terms voids every collected signature.
package agreement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jacsproject/jacs-go/canonical"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
)

// TermsDigest computes the digest of the document's substantive terms.
// statusFields names per-document-type status markers excluded from the
// terms, so flipping a status never invalidates collected consent.
func TermsDigest(doc map[string]any, statusFields []string) (interfaces.Digest, error) {
	fields, err := canonical.TermsFields(doc, statusFields)
	if err != nil {
		return interfaces.Digest{}, err
	}
	return canonical.DigestFields(doc, fields)
}

// Record decodes the agreement attached to doc.
// Returns false when the document carries no agreement.
func Record(doc map[string]any) (interfaces.AgreementRecord, bool, error) {
	raw, ok := doc[interfaces.FieldAgreement]
	if !ok || raw == nil {
		return interfaces.AgreementRecord{}, false, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return interfaces.AgreementRecord{}, false, fmt.Errorf("malformed agreement record: %w", err)
	}
	var record interfaces.AgreementRecord
	if err := json.Unmarshal(encoded, &record); err != nil {
		return interfaces.AgreementRecord{}, false, fmt.Errorf("malformed agreement record: %w", err)
	}
	return record, true, nil
}

func putRecord(doc map[string]any, record interfaces.AgreementRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode agreement record: %w", err)
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return fmt.Errorf("failed to encode agreement record: %w", err)
	}
	doc[interfaces.FieldAgreement] = asMap
	return nil
}

// Propose attaches a fresh agreement to doc: the required signer set, an
// optional question and context, and the terms digest the signers will bind
// to. Any existing agreement on the document is replaced.
func Propose(doc map[string]any, agentIDs []string, question, agreementContext string, statusFields []string) error {
	if len(agentIDs) == 0 {
		return fmt.Errorf("agreement requires at least one signer")
	}
	seen := make(map[string]struct{}, len(agentIDs))
	for _, id := range agentIDs {
		if err := interfaces.AgentID(id).Validate(); err != nil {
			return fmt.Errorf("invalid signer id %q: %w", id, err)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate signer id %q", id)
		}
		seen[id] = struct{}{}
	}

	digest, err := TermsDigest(doc, statusFields)
	if err != nil {
		return err
	}

	if err := putRecord(doc, interfaces.AgreementRecord{
		AgentIDs: append([]string(nil), agentIDs...),
		Question: question,
		Context:  agreementContext,
	}); err != nil {
		return err
	}
	doc[interfaces.FieldAgreementHash] = digest.String()
	return nil
}

// checkMutation loads the record and enforces the shared preconditions of
// Sign and Disagree: the agent must be a required signer and the stored
// terms digest must still match the document's current terms.
func checkMutation(doc map[string]any, agentID interfaces.AgentID, statusFields []string) (interfaces.AgreementRecord, []string, error) {
	record, ok, err := Record(doc)
	if err != nil {
		return interfaces.AgreementRecord{}, nil, err
	}
	if !ok {
		return interfaces.AgreementRecord{}, nil, fmt.Errorf("document has no agreement")
	}

	member := false
	for _, id := range record.AgentIDs {
		if id == agentID.String() {
			member = true
			break
		}
	}
	if !member {
		return interfaces.AgreementRecord{}, nil, fmt.Errorf("%w: agent %s is not a required signer", interfaces.ErrAgentNotAuthorized, agentID)
	}

	fields, err := canonical.TermsFields(doc, statusFields)
	if err != nil {
		return interfaces.AgreementRecord{}, nil, err
	}
	current, err := canonical.DigestFields(doc, fields)
	if err != nil {
		return interfaces.AgreementRecord{}, nil, err
	}
	stored, _ := doc[interfaces.FieldAgreementHash].(string)
	if stored != current.String() {
		return interfaces.AgreementRecord{}, nil, fmt.Errorf("%w: agreement binds digest %s, terms now digest to %s", interfaces.ErrStaleTerms, stored, current)
	}

	// A stance, once recorded, holds for as long as the terms do. Entries
	// only vanish through Reset when the terms change.
	if hasEntry(record.Signatures, agentID.String()) {
		return interfaces.AgreementRecord{}, nil, fmt.Errorf("%w: agent %s already signed", interfaces.ErrStanceRecorded, agentID)
	}
	if hasEntry(record.Disagreements, agentID.String()) {
		return interfaces.AgreementRecord{}, nil, fmt.Errorf("%w: agent %s already refused", interfaces.ErrStanceRecorded, agentID)
	}

	return record, fields, nil
}

// Sign records the agent's consent to the document's current terms. The
// consent signature covers the terms fields, so it verifies only against the
// terms the agent actually saw. A recorded stance is irrevocable for the
// bound terms digest: an agent who already signed or refused gets
// ErrStanceRecorded.
func Sign(ctx context.Context, agent signing.AgentContext, doc map[string]any, statusFields []string) error {
	record, fields, err := checkMutation(doc, agent.AgentID, statusFields)
	if err != nil {
		return err
	}

	sig, err := signing.SignResponse(ctx, agent, doc, fields, record.Question, interfaces.ResponseAgree)
	if err != nil {
		return err
	}

	record.Signatures = append(record.Signatures, sig)
	return putRecord(doc, record)
}

// Disagree records the agent's signed refusal of the current terms. The
// reason is mandatory and covered by the refusal signature, so a recorded
// refusal is provably deliberate and its reason tamper-evident. Like consent,
// a refusal is irrevocable for the bound terms digest.
func Disagree(ctx context.Context, agent signing.AgentContext, doc map[string]any, reason string, statusFields []string) error {
	if reason == "" {
		return fmt.Errorf("disagreement requires a reason")
	}

	record, fields, err := checkMutation(doc, agent.AgentID, statusFields)
	if err != nil {
		return err
	}

	sig, err := signing.SignResponse(ctx, agent, doc, fields, reason, interfaces.ResponseDisagree)
	if err != nil {
		return err
	}

	record.Disagreements = append(record.Disagreements, sig)
	return putRecord(doc, record)
}

// Reset voids all collected consent after a change to the substantive terms
// and rebinds the agreement to the new terms digest. The signer set,
// question and context survive; signatures and disagreements do not.
func Reset(doc map[string]any, statusFields []string) error {
	record, ok, err := Record(doc)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	digest, err := TermsDigest(doc, statusFields)
	if err != nil {
		return err
	}

	record.Signatures = nil
	record.Disagreements = nil
	if err := putRecord(doc, record); err != nil {
		return err
	}
	doc[interfaces.FieldAgreementHash] = digest.String()
	return nil
}

// Stale reports whether the document's terms have drifted from the digest
// its agreement binds to.
func Stale(doc map[string]any, statusFields []string) (bool, error) {
	_, ok, err := Record(doc)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	current, err := TermsDigest(doc, statusFields)
	if err != nil {
		return false, err
	}
	stored, _ := doc[interfaces.FieldAgreementHash].(string)
	return stored != current.String(), nil
}

func hasEntry(sigs []interfaces.Signature, agentID string) bool {
	for _, s := range sigs {
		if s.AgentID == agentID {
			return true
		}
	}
	return false
}

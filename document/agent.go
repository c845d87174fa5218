package document

import (
	"context"
	"fmt"

	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/jacsproject/jacs-go/signing"
	"github.com/jacsproject/jacs-go/version"
)

// AgentSchema is the $schema reference agent documents carry.
const AgentSchema = "https://jacs.postfiat.org/schemas/agent/v1"

// NewAgent creates the agent's own identity document. An agent is itself a
// signed document: its jacsId is the agent id and its jacsVersion is the
// agent version recorded in every signature the agent produces. The agent
// context's AgentVersion is updated to the stamped version.
func (e *Engine) NewAgent(ctx context.Context, agent *signing.AgentContext, content map[string]any) (map[string]any, error) {
	if err := agent.Validate(); err != nil {
		return nil, err
	}

	doc := version.Create(content)
	doc[interfaces.FieldID] = agent.AgentID.String()
	doc[interfaces.FieldType] = "agent"
	if _, ok := doc[interfaces.FieldLevel]; !ok {
		doc[interfaces.FieldLevel] = "config"
	}
	if _, ok := doc[interfaces.FieldSchema]; !ok {
		doc[interfaces.FieldSchema] = AgentSchema
	}

	// The agent's signature must record the version of the document it is
	// embedded in.
	agent.AgentVersion = interfaces.VersionID(fmt.Sprint(doc[interfaces.FieldVersion]))

	if err := e.seal(ctx, *agent, doc); err != nil {
		return nil, err
	}
	if err := e.persist(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadAgent verifies an agent document and returns the identity it
// establishes. The document must verify fully and be self-signed: the
// signature's agentID must be the document's own jacsId.
func (e *Engine) LoadAgent(ctx context.Context, keys interfaces.KeyProvider, doc map[string]any) (interfaces.AgentID, interfaces.VersionID, error) {
	if docType(doc) != "agent" {
		return "", "", fmt.Errorf("document is a %q, not an agent", docType(doc))
	}

	result := e.Verify(ctx, keys, doc)
	if !result.Verified {
		return "", "", result.Err
	}

	id, _ := doc[interfaces.FieldID].(string)
	sig, found, err := getSignature(doc, interfaces.FieldSignature)
	if err != nil || !found {
		return "", "", fmt.Errorf("%w: agent document has no signature", interfaces.ErrSignatureInvalid)
	}
	if sig.AgentID != id {
		return "", "", fmt.Errorf("%w: agent document %s signed by %s, not self-signed", interfaces.ErrSignatureInvalid, id, sig.AgentID)
	}

	agentID := interfaces.AgentID(id)
	if err := agentID.Validate(); err != nil {
		return "", "", err
	}
	ver, _ := doc[interfaces.FieldVersion].(string)
	return agentID, interfaces.VersionID(ver), nil
}

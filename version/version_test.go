package version

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jacsproject/jacs-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateStampsFreshIdentity(t *testing.T) {
	content := map[string]any{
		"jacsType": "task",
		"title":    "write report",
	}

	doc := Create(content)

	id, _ := doc[interfaces.FieldID].(string)
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	assert.Equal(t, doc[interfaces.FieldVersion], doc[interfaces.FieldOriginalVersion])
	assert.Equal(t, doc[interfaces.FieldVersionDate], doc[interfaces.FieldOriginalDate])
	assert.NotContains(t, doc, interfaces.FieldPreviousVersion)
	assert.Equal(t, "write report", doc["title"])

	// Input map is untouched.
	assert.NotContains(t, content, interfaces.FieldID)
}

func TestCreateOverwritesClaimedIdentity(t *testing.T) {
	doc := Create(map[string]any{
		interfaces.FieldID:      "someone-elses-id",
		interfaces.FieldVersion: "someone-elses-version",
	})
	assert.NotEqual(t, "someone-elses-id", doc[interfaces.FieldID])
	assert.NotEqual(t, "someone-elses-version", doc[interfaces.FieldVersion])
}

func TestUpdateLinksToPrevious(t *testing.T) {
	first := Create(map[string]any{"jacsType": "task", "title": "v1"})

	second, err := Update(first, map[string]any{
		interfaces.FieldID: first[interfaces.FieldID],
		"jacsType":         "task",
		"title":            "v2",
	})
	require.NoError(t, err)

	assert.Equal(t, first[interfaces.FieldID], second[interfaces.FieldID])
	assert.Equal(t, first[interfaces.FieldVersion], second[interfaces.FieldPreviousVersion])
	assert.NotEqual(t, first[interfaces.FieldVersion], second[interfaces.FieldVersion])
	assert.Equal(t, first[interfaces.FieldOriginalVersion], second[interfaces.FieldOriginalVersion])
	assert.Equal(t, first[interfaces.FieldOriginalDate], second[interfaces.FieldOriginalDate])
	assert.Equal(t, "v2", second["title"])
}

func TestUpdateStripsStaleIntegrityFields(t *testing.T) {
	first := Create(map[string]any{"jacsType": "task"})

	second, err := Update(first, map[string]any{
		interfaces.FieldSha256:       "stale digest",
		interfaces.FieldSignature:    map[string]any{"signature": "stale"},
		interfaces.FieldRegistration: map[string]any{"signature": "stale"},
		"title":                      "v2",
	})
	require.NoError(t, err)
	assert.NotContains(t, second, interfaces.FieldSha256)
	assert.NotContains(t, second, interfaces.FieldSignature)
	assert.NotContains(t, second, interfaces.FieldRegistration)
}

func TestUpdateRejectsForeignDocumentID(t *testing.T) {
	first := Create(map[string]any{"jacsType": "task"})

	_, err := Update(first, map[string]any{
		interfaces.FieldID: uuid.New().String(),
	})
	assert.Error(t, err)
}

func TestUpdateRejectsUnversionedCurrent(t *testing.T) {
	_, err := Update(map[string]any{"jacsType": "task"}, map[string]any{})
	assert.Error(t, err)

	_, err = Update(map[string]any{interfaces.FieldID: uuid.New().String()}, map[string]any{})
	assert.Error(t, err)
}

func buildChain(t *testing.T, length int) []map[string]any {
	t.Helper()
	chain := []map[string]any{Create(map[string]any{"jacsType": "task", "rev": 0})}
	for i := 1; i < length; i++ {
		next, err := Update(chain[i-1], map[string]any{"jacsType": "task", "rev": i})
		require.NoError(t, err)
		chain = append(chain, next)
	}
	return chain
}

func TestHistoryOrdersChain(t *testing.T) {
	chain := buildChain(t, 5)

	// Shuffle the storage-order view of the chain.
	shuffled := []map[string]any{chain[3], chain[0], chain[4], chain[2], chain[1]}

	ordered, err := History(shuffled)
	require.NoError(t, err)
	require.Len(t, ordered, 5)
	for i, doc := range ordered {
		assert.Equal(t, i, doc["rev"])
	}
}

func TestHistoryEmpty(t *testing.T) {
	ordered, err := History(nil)
	require.NoError(t, err)
	assert.Empty(t, ordered)
}

func TestHistoryDetectsOrphanLink(t *testing.T) {
	chain := buildChain(t, 4)

	// Drop a middle version: its successor's link no longer resolves.
	_, err := History([]map[string]any{chain[0], chain[2], chain[3]})
	assert.ErrorIs(t, err, interfaces.ErrChainOrphan)
}

func TestHistoryDetectsCycle(t *testing.T) {
	chain := buildChain(t, 3)
	chain[0][interfaces.FieldPreviousVersion] = chain[2][interfaces.FieldVersion]

	_, err := History(chain)
	assert.ErrorIs(t, err, interfaces.ErrChainCycle)
}

func TestHistoryDetectsSelfLink(t *testing.T) {
	doc := Create(map[string]any{"jacsType": "task"})
	doc[interfaces.FieldPreviousVersion] = doc[interfaces.FieldVersion]

	_, err := History([]map[string]any{doc})
	assert.ErrorIs(t, err, interfaces.ErrChainCycle)
}

func TestHistoryDetectsCompetingUpdates(t *testing.T) {
	chain := buildChain(t, 2)

	fork, err := Update(chain[0], map[string]any{"jacsType": "task", "rev": "fork"})
	require.NoError(t, err)

	_, err = History(append(chain, fork))
	assert.ErrorIs(t, err, interfaces.ErrVersionConflict)
}

func TestHistoryDetectsTwoRoots(t *testing.T) {
	first := Create(map[string]any{"jacsType": "task"})
	second := Create(map[string]any{"jacsType": "task"})
	second[interfaces.FieldID] = first[interfaces.FieldID]

	_, err := History([]map[string]any{first, second})
	assert.ErrorIs(t, err, interfaces.ErrVersionConflict)
}

func TestHistoryRejectsMixedDocuments(t *testing.T) {
	first := Create(map[string]any{"jacsType": "task"})
	second := Create(map[string]any{"jacsType": "task"})

	_, err := History([]map[string]any{first, second})
	assert.ErrorIs(t, err, interfaces.ErrChainOrphan)
}

func TestTip(t *testing.T) {
	chain := buildChain(t, 3)

	tip, err := Tip([]map[string]any{chain[1], chain[2], chain[0]})
	require.NoError(t, err)
	assert.Equal(t, 2, tip["rev"])

	_, err = Tip(nil)
	assert.ErrorIs(t, err, interfaces.ErrDocumentNotFound)
}

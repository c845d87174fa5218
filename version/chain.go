package version

import (
	"fmt"

	"github.com/jacsproject/jacs-go/interfaces"
)

// History linearizes the versions of a single document into creation order,
// oldest first. The input is the unordered version set as returned by a
// storage backend.
//
// The lineage must form a simple linked list. Violations are structural
// errors, never silent gaps:
//   - a jacsPreviousVersion that resolves to no version in the set is an
//     orphan link (interfaces.ErrChainOrphan);
//   - a loop in the previous-version links is a cycle (interfaces.ErrChainCycle);
//   - two versions claiming the same predecessor, or two root versions, are
//     competing updates (interfaces.ErrVersionConflict).
func History(versions []map[string]any) ([]map[string]any, error) {
	if len(versions) == 0 {
		return nil, nil
	}

	byVersion := make(map[string]map[string]any, len(versions))
	successor := make(map[string]string, len(versions))
	var root string
	docID := ""

	for _, doc := range versions {
		id, ok := doc[interfaces.FieldID].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: version without document id", interfaces.ErrChainOrphan)
		}
		if docID == "" {
			docID = id
		} else if id != docID {
			return nil, fmt.Errorf("%w: mixed document ids %s and %s in one chain", interfaces.ErrChainOrphan, docID, id)
		}

		versionID, ok := doc[interfaces.FieldVersion].(string)
		if !ok || versionID == "" {
			return nil, fmt.Errorf("%w: version without version id", interfaces.ErrChainOrphan)
		}
		if _, dup := byVersion[versionID]; dup {
			return nil, fmt.Errorf("%w: duplicate version %s", interfaces.ErrVersionConflict, versionID)
		}
		byVersion[versionID] = doc

		previous, hasPrevious := doc[interfaces.FieldPreviousVersion].(string)
		if !hasPrevious || previous == "" {
			if root != "" {
				return nil, fmt.Errorf("%w: versions %s and %s both claim to be the original", interfaces.ErrVersionConflict, root, versionID)
			}
			root = versionID
			continue
		}
		if previous == versionID {
			return nil, fmt.Errorf("%w: version %s links to itself", interfaces.ErrChainCycle, versionID)
		}
		if other, claimed := successor[previous]; claimed {
			return nil, fmt.Errorf("%w: versions %s and %s both claim predecessor %s", interfaces.ErrVersionConflict, other, versionID, previous)
		}
		successor[previous] = versionID
	}

	for previous := range successor {
		if _, ok := byVersion[previous]; !ok {
			return nil, fmt.Errorf("%w: previous version %s does not resolve", interfaces.ErrChainOrphan, previous)
		}
	}
	if root == "" {
		// Every version has a resolving predecessor, so the links close on
		// themselves.
		return nil, fmt.Errorf("%w: chain of %s has no original version", interfaces.ErrChainCycle, docID)
	}

	ordered := make([]map[string]any, 0, len(versions))
	visited := make(map[string]struct{}, len(versions))
	for current := root; current != ""; current = successor[current] {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("%w: version %s visited twice", interfaces.ErrChainCycle, current)
		}
		visited[current] = struct{}{}
		ordered = append(ordered, byVersion[current])
	}

	if len(ordered) != len(versions) {
		// Unreachable versions mean a second disconnected strand whose links
		// loop among themselves.
		return nil, fmt.Errorf("%w: %d of %d versions unreachable from the original", interfaces.ErrChainCycle, len(versions)-len(ordered), len(versions))
	}

	return ordered, nil
}

// Tip returns the newest version of the chain, validating it first.
func Tip(versions []map[string]any) (map[string]any, error) {
	ordered, err := History(versions)
	if err != nil {
		return nil, err
	}
	if len(ordered) == 0 {
		return nil, interfaces.ErrDocumentNotFound
	}
	return ordered[len(ordered)-1], nil
}

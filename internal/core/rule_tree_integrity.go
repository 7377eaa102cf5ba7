package core

import (
	"context"
	"fmt"

	"storagecore/pkg/domain"
)

// NewTreeIntegrityRule returns the rule guarding the location hierarchy:
// every parent and child reference must resolve, and no location may be its
// own ancestor.
func NewTreeIntegrityRule() domain.Rule {
	return treeIntegrityRule{}
}

type treeIntegrityRule struct{}

func (treeIntegrityRule) Name() string { return "tree_integrity" }

func (treeIntegrityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	locations := view.ListStorageLocations()
	byID := make(map[string]domain.StorageLocation, len(locations))
	for _, loc := range locations {
		byID[loc.ID] = loc
	}

	res := domain.Result{}
	violate := func(loc domain.StorageLocation, format string, args ...any) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "tree_integrity",
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf(format, args...),
			Entity:   domain.EntityStorageLocation,
			EntityID: loc.ID,
		})
	}

	for _, loc := range locations {
		if loc.ParentID != nil {
			if _, ok := byID[*loc.ParentID]; !ok {
				violate(loc, "%s references missing parent %s", loc.Label, *loc.ParentID)
			}
		}
		for _, childID := range loc.ChildIDs {
			if _, ok := byID[childID]; !ok {
				violate(loc, "%s references missing child %s", loc.Label, childID)
			}
		}

		// Ancestor walk bounded by the arena size; revisiting the start
		// means the parent chain loops.
		steps := 0
		for id := loc.ParentID; id != nil; {
			if *id == loc.ID {
				violate(loc, "%s is its own ancestor", loc.Label)
				break
			}
			parent, ok := byID[*id]
			if !ok {
				break
			}
			id = parent.ParentID
			if steps++; steps > len(locations) {
				violate(loc, "%s has a cyclic parent chain", loc.Label)
				break
			}
		}
	}
	return res, nil
}

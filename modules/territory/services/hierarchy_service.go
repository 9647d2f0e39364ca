package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
)

// HierarchyService answers ancestor/descendant queries over the territory
// forest and guards the single structural invariant: no territory may be
// its own ancestor.
type HierarchyService struct {
	repo territory.Repository
}

func NewHierarchyService(repo territory.Repository) *HierarchyService {
	return &HierarchyService{repo: repo}
}

func (s *HierarchyService) Descendants(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	all, err := s.repo.GetAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return descendantsOf(all, territoryID), nil
}

func (s *HierarchyService) WouldCreateCycle(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID, candidateParentID uuid.UUID) (bool, error) {
	all, err := s.repo.GetAll(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return wouldCreateCycle(all, territoryID, candidateParentID), nil
}

// AssignableParents returns every territory id that can legally become the
// parent of territoryID: all territories minus itself and its descendants.
func (s *HierarchyService) AssignableParents(ctx context.Context, tenantID uuid.UUID, territoryID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	all, err := s.repo.GetAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	excluded := descendantsOf(all, territoryID)
	excluded[territoryID] = struct{}{}

	out := make(map[uuid.UUID]struct{}, len(all))
	for _, t := range all {
		if _, skip := excluded[t.ID()]; !skip {
			out[t.ID()] = struct{}{}
		}
	}
	return out, nil
}

// descendantsOf walks the child relation transitively. The visited set
// doubles as a termination guard so malformed data with an existing cycle
// still yields a finite answer instead of looping.
func descendantsOf(all []territory.Territory, rootID uuid.UUID) map[uuid.UUID]struct{} {
	children := make(map[uuid.UUID][]uuid.UUID, len(all))
	for _, t := range all {
		if p := t.ParentID(); p != nil {
			children[*p] = append(children[*p], t.ID())
		}
	}

	visited := make(map[uuid.UUID]struct{})
	queue := append([]uuid.UUID(nil), children[rootID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := visited[id]; seen {
			continue
		}
		visited[id] = struct{}{}
		queue = append(queue, children[id]...)
	}
	return visited
}

func wouldCreateCycle(all []territory.Territory, territoryID uuid.UUID, candidateParentID uuid.UUID) bool {
	if candidateParentID == territoryID {
		return true
	}
	_, isDescendant := descendantsOf(all, territoryID)[candidateParentID]
	return isDescendant
}

package services

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/territory/modules/territory/domain/aggregates/territory"
	"github.com/iota-uz/territory/modules/territory/domain/assignable"
)

// Match pairs a matched territory with the rule that qualified it. When
// several of a territory's rules fire, Rule is the one with the smallest
// priority number.
type Match struct {
	Territory territory.Territory
	Rule      territory.Rule
}

// MatchTerritories evaluates every active rule of every active territory
// against the entity. Rules within a territory are OR-combined: any one
// firing qualifies the territory. The result is ordered by the priority of
// each territory's best matching rule (ascending), with territory id as the
// deterministic tie-break.
func MatchTerritories(log logrus.FieldLogger, e assignable.Entity, territories []territory.Territory, rules []territory.Rule) []Match {
	byID := make(map[uuid.UUID]territory.Territory, len(territories))
	for _, t := range territories {
		if t.IsActive() {
			byID[t.ID()] = t
		}
	}

	best := make(map[uuid.UUID]territory.Rule)
	for _, r := range rules {
		if !r.IsActive() {
			continue
		}
		t, ok := byID[r.TerritoryID()]
		if !ok {
			continue
		}
		if prev, matched := best[t.ID()]; matched && prev.Priority() <= r.Priority() {
			continue
		}
		fieldValue, present := e.Field(r.FieldName())
		if EvaluateRule(log, r, fieldValue, present) {
			best[t.ID()] = r
		}
	}

	matches := make([]Match, 0, len(best))
	for id, r := range best {
		matches = append(matches, Match{Territory: byID[id], Rule: r})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Rule.Priority() != matches[j].Rule.Priority() {
			return matches[i].Rule.Priority() < matches[j].Rule.Priority()
		}
		a, b := matches[i].Territory.ID(), matches[j].Territory.ID()
		return bytes.Compare(a[:], b[:]) < 0
	})
	return matches
}

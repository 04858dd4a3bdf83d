package graph

import "lifeswap/internal/domain"

// Satisfied evaluates a branching condition against cumulative points and the visited set.
// An empty condition is always satisfied.
func Satisfied(c domain.Condition, points int, visited map[string]bool) bool {
	if c.Empty() {
		return true
	}
	if c.MinPoints != nil && points < *c.MinPoints {
		return false
	}
	if c.MaxPoints != nil && points > *c.MaxPoints {
		return false
	}
	for _, id := range c.RequiresVisited {
		if !visited[id] {
			return false
		}
	}
	return true
}

// Available filters a scenario's choices down to the ones whose target is reachable
// with the given progress. Terminal branches (no next scenario) are always available.
func (g *Graph) Available(scenarioID string, points int, visited map[string]bool) []domain.Choice {
	all := g.Choices(scenarioID)
	out := make([]domain.Choice, 0, len(all))
	for _, c := range all {
		if g.choiceOpen(c, points, visited) {
			out = append(out, c)
		}
	}
	return out
}

// IsAvailable reports whether choiceID may be taken from scenarioID right now.
func (g *Graph) IsAvailable(scenarioID, choiceID string, points int, visited map[string]bool) bool {
	c, ok := g.choices[choiceID]
	if !ok || c.ScenarioID != scenarioID {
		return false
	}
	return g.choiceOpen(c, points, visited)
}

func (g *Graph) choiceOpen(c domain.Choice, points int, visited map[string]bool) bool {
	if c.NextScenarioID == nil {
		return true
	}
	next, ok := g.scenarios[*c.NextScenarioID]
	if !ok {
		return false
	}
	return Satisfied(next.Condition, points, visited)
}

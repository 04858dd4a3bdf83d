package graph

import (
	"fmt"

	"lifeswap/internal/domain"
)

// Validate checks structural integrity before publication. It collects every
// issue rather than stopping at the first and never mutates the graph.
func Validate(g *Graph) error {
	issues := Inspect(g)
	if len(issues) == 0 {
		return nil
	}
	return &domain.StructuralError{ExperienceID: g.Experience.ID, Issues: issues}
}

// Inspect returns the structural issues of a graph; empty means publishable.
func Inspect(g *Graph) []domain.Issue {
	var issues []domain.Issue
	add := func(is domain.Issue) { issues = append(issues, is) }

	issues = append(issues, g.duplicates...)
	for _, c := range g.orphans {
		add(domain.Issue{
			Code:       "orphan_choice",
			ScenarioID: c.ScenarioID,
			ChoiceID:   c.ID,
			Message:    fmt.Sprintf("choice %s belongs to unknown scenario %s", c.ID, c.ScenarioID),
		})
	}
	if g.Count() == 0 {
		add(domain.Issue{Code: "empty_graph", Message: "experience has no scenarios"})
		return issues
	}

	var entries []string
	terminals := 0
	for _, s := range g.Scenarios() {
		if s.ExperienceID != "" && g.Experience.ID != "" && s.ExperienceID != g.Experience.ID {
			add(domain.Issue{
				Code:       "foreign_scenario",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s belongs to experience %s", s.ID, s.ExperienceID),
			})
		}
		if s.ParentID == nil {
			entries = append(entries, s.ID)
		} else if _, ok := g.scenarios[*s.ParentID]; !ok {
			add(domain.Issue{
				Code:       "unknown_parent",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s has parent %s outside the experience", s.ID, *s.ParentID),
			})
		}
		switch s.Type {
		case domain.ScenarioDecision, domain.ScenarioInfo, domain.ScenarioReflection:
		default:
			add(domain.Issue{
				Code:       "invalid_type",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s has unknown type %q", s.ID, s.Type),
			})
		}
		if s.TimeLimit != nil && *s.TimeLimit < 0 {
			add(domain.Issue{
				Code:       "invalid_time_limit",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s has negative time limit", s.ID),
			})
		}
		out := g.outgoing[s.ID]
		if s.Type == domain.ScenarioDecision && len(out) == 0 && !s.Terminal {
			add(domain.Issue{
				Code:       "decision_without_choices",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("decision scenario %s has no choices and is not tagged terminal", s.ID),
			})
		}
		if s.Terminal && len(out) > 0 {
			add(domain.Issue{
				Code:       "terminal_with_choices",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s is tagged terminal but declares %d choice(s)", s.ID, len(out)),
			})
		}
		if g.IsTerminal(s.ID) {
			terminals++
		}
		issues = append(issues, inspectCondition(g, s)...)
		for _, c := range g.Choices(s.ID) {
			if c.NextScenarioID == nil {
				continue
			}
			if _, ok := g.scenarios[*c.NextScenarioID]; !ok {
				add(domain.Issue{
					Code:       "dangling_choice",
					ScenarioID: s.ID,
					ChoiceID:   c.ID,
					Message:    fmt.Sprintf("choice %s points to %s which is not in the experience", c.ID, *c.NextScenarioID),
				})
			}
		}
	}

	switch len(entries) {
	case 0:
		add(domain.Issue{Code: "no_entry", Message: "no scenario without a parent"})
	case 1:
	default:
		add(domain.Issue{Code: "multiple_entries", Message: fmt.Sprintf("%d scenarios without a parent: %v", len(entries), entries)})
	}
	if terminals == 0 {
		add(domain.Issue{Code: "no_terminal", Message: "no terminal scenario"})
	}
	if len(entries) == 1 {
		reached := g.Reachable(entries[0])
		for _, s := range g.Scenarios() {
			if !reached[s.ID] {
				add(domain.Issue{
					Code:       "unreachable",
					ScenarioID: s.ID,
					Message:    fmt.Sprintf("scenario %s is not reachable from entry %s", s.ID, entries[0]),
				})
			}
		}
	}
	return issues
}

func inspectCondition(g *Graph, s domain.Scenario) []domain.Issue {
	var issues []domain.Issue
	c := s.Condition
	if c.MinPoints != nil && c.MaxPoints != nil && *c.MinPoints > *c.MaxPoints {
		issues = append(issues, domain.Issue{
			Code:       "unsatisfiable_condition",
			ScenarioID: s.ID,
			Message:    fmt.Sprintf("scenario %s requires min_points %d above max_points %d", s.ID, *c.MinPoints, *c.MaxPoints),
		})
	}
	for _, req := range c.RequiresVisited {
		if _, ok := g.scenarios[req]; !ok {
			issues = append(issues, domain.Issue{
				Code:       "unknown_requirement",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s requires visiting unknown scenario %s", s.ID, req),
			})
		}
	}
	return issues
}

// Reachable walks choice edges breadth-first from start. Conditions are ignored:
// a gated scenario still counts as structurally reachable.
func (g *Graph) Reachable(start string) map[string]bool {
	seen := map[string]bool{}
	if _, ok := g.scenarios[start]; !ok {
		return seen
	}
	queue := []string{start}
	seen[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range g.Choices(cur) {
			if c.NextScenarioID == nil {
				continue
			}
			next := *c.NextScenarioID
			if seen[next] {
				continue
			}
			if _, ok := g.scenarios[next]; !ok {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return seen
}

// Package graph holds an experience's scenario/choice graph as an id-indexed arena.
//
// Scenarios and choices never point at each other directly: every edge is an id
// reference resolved through the Graph, so revisitable hubs and converging branches
// are plain data.
package graph

import (
	"fmt"
	"sort"

	"lifeswap/internal/domain"
)

type Graph struct {
	Experience domain.Experience

	scenarios map[string]domain.Scenario
	order     []string
	choices   map[string]domain.Choice
	outgoing  map[string][]string

	// recorded while building; reported by Validate
	duplicates []domain.Issue
	orphans    []domain.Choice
}

// New builds the arena. Choices are kept per source scenario in declared order.
func New(exp domain.Experience, scenarios []domain.Scenario, choices []domain.Choice) *Graph {
	g := &Graph{
		Experience: exp,
		scenarios:  make(map[string]domain.Scenario, len(scenarios)),
		choices:    make(map[string]domain.Choice, len(choices)),
		outgoing:   make(map[string][]string, len(scenarios)),
	}
	for _, s := range scenarios {
		if _, ok := g.scenarios[s.ID]; ok {
			g.duplicates = append(g.duplicates, domain.Issue{
				Code:       "duplicate_scenario",
				ScenarioID: s.ID,
				Message:    fmt.Sprintf("scenario %s declared more than once", s.ID),
			})
			continue
		}
		g.scenarios[s.ID] = s
		g.order = append(g.order, s.ID)
	}
	sort.SliceStable(g.order, func(i, j int) bool {
		a, b := g.scenarios[g.order[i]], g.scenarios[g.order[j]]
		if a.OrderIndex != b.OrderIndex {
			return a.OrderIndex < b.OrderIndex
		}
		return a.ID < b.ID
	})
	for _, c := range choices {
		if _, ok := g.choices[c.ID]; ok {
			g.duplicates = append(g.duplicates, domain.Issue{
				Code:       "duplicate_choice",
				ScenarioID: c.ScenarioID,
				ChoiceID:   c.ID,
				Message:    fmt.Sprintf("choice %s declared more than once", c.ID),
			})
			continue
		}
		if _, ok := g.scenarios[c.ScenarioID]; !ok {
			g.orphans = append(g.orphans, c)
			continue
		}
		g.choices[c.ID] = c
		g.outgoing[c.ScenarioID] = append(g.outgoing[c.ScenarioID], c.ID)
	}
	for sid, ids := range g.outgoing {
		sort.SliceStable(ids, func(i, j int) bool {
			a, b := g.choices[ids[i]], g.choices[ids[j]]
			if a.OrderIndex != b.OrderIndex {
				return a.OrderIndex < b.OrderIndex
			}
			return a.ID < b.ID
		})
		g.outgoing[sid] = ids
	}
	return g
}

// Entry returns the scenario without a parent. When several exist the lowest
// order_index wins; Validate rejects such graphs before publication.
func (g *Graph) Entry() (domain.Scenario, error) {
	for _, id := range g.order {
		s := g.scenarios[id]
		if s.ParentID == nil {
			return s, nil
		}
	}
	return domain.Scenario{}, domain.ErrEmptyGraph
}

func (g *Graph) Scenario(id string) (domain.Scenario, error) {
	s, ok := g.scenarios[id]
	if !ok {
		return domain.Scenario{}, fmt.Errorf("scenario %s: %w", id, domain.ErrNotFound)
	}
	return s, nil
}

func (g *Graph) Choice(id string) (domain.Choice, error) {
	c, ok := g.choices[id]
	if !ok {
		return domain.Choice{}, fmt.Errorf("choice %s: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

// Choices returns the outgoing choices of a scenario in declared order.
func (g *Graph) Choices(scenarioID string) []domain.Choice {
	ids := g.outgoing[scenarioID]
	out := make([]domain.Choice, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.choices[id])
	}
	return out
}

// Scenarios returns every scenario in authoring display order.
func (g *Graph) Scenarios() []domain.Scenario {
	out := make([]domain.Scenario, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.scenarios[id])
	}
	return out
}

func (g *Graph) Count() int { return len(g.scenarios) }

// IsTerminal reports whether reaching the scenario ends a traversal:
// it has no outgoing choices or is explicitly tagged terminal.
func (g *Graph) IsTerminal(scenarioID string) bool {
	s, ok := g.scenarios[scenarioID]
	if !ok {
		return false
	}
	return s.Terminal || len(g.outgoing[scenarioID]) == 0
}

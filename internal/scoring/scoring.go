// Package scoring decides how many points a traversal is worth and when a
// scenario ends one.
package scoring

import (
	"fmt"
	"sort"

	"lifeswap/internal/domain"
	"lifeswap/internal/graph"
)

const (
	PolicyDefault   = "default"
	PolicyTimeBonus = "time_bonus"
)

// Policy is replaceable per experience. Implementations must be pure: Score is
// recomputed from the ledger history on every step.
type Policy interface {
	Name() string
	Score(l domain.Ledger) int
	Terminal(g *graph.Graph, scenarioID string) bool
}

// Default sums the entry arrival points, every choice impact and the arrival
// points of every scenario reached through a choice.
type Default struct{}

func (Default) Name() string { return PolicyDefault }

func (Default) Score(l domain.Ledger) int {
	total := l.EntryPoints
	for _, s := range l.Steps {
		total += s.PointsImpact + s.ArrivalPoints
	}
	return total
}

func (Default) Terminal(g *graph.Graph, scenarioID string) bool {
	return g.IsTerminal(scenarioID)
}

// TimeBonus rewards answering a timed scenario within its limit.
type TimeBonus struct {
	Default
	BonusPoints int
}

func (TimeBonus) Name() string { return PolicyTimeBonus }

func (p TimeBonus) Score(l domain.Ledger) int {
	total := p.Default.Score(l)
	for _, s := range l.Steps {
		if s.TimeLimit != nil && s.ElapsedSeconds <= *s.TimeLimit {
			total += p.BonusPoints
		}
	}
	return total
}

type Registry struct {
	policies map[string]Policy
}

func NewRegistry(policies ...Policy) *Registry {
	r := &Registry{policies: map[string]Policy{}}
	for _, p := range policies {
		r.policies[p.Name()] = p
	}
	return r
}

// Builtin returns a registry with the default and time_bonus policies.
func Builtin(bonusPoints int) *Registry {
	return NewRegistry(Default{}, TimeBonus{BonusPoints: bonusPoints})
}

func (r *Registry) Lookup(name string) (Policy, error) {
	if name == "" {
		name = PolicyDefault
	}
	p, ok := r.policies[name]
	if !ok {
		return nil, fmt.Errorf("scoring policy %q: %w", name, domain.ErrInvalidInput)
	}
	return p, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.policies))
	for n := range r.policies {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

package scoring

import (
	"errors"
	"testing"

	"lifeswap/internal/domain"
	"lifeswap/internal/graph"
)

func intp(v int) *int { return &v }

func TestDefaultScoreSumsImpactsAndArrivals(t *testing.T) {
	l := domain.Ledger{
		EntryPoints: 2,
		Steps: []domain.LedgerStep{
			{PointsImpact: 10, ArrivalPoints: 3},
			{PointsImpact: -4, ArrivalPoints: 0},
			{PointsImpact: 6, ArrivalPoints: 1},
		},
	}
	if got := (Default{}).Score(l); got != 18 {
		t.Fatalf("score = %d, want 18", got)
	}
}

func TestTimeBonusOnlyForTimedStepsWithinLimit(t *testing.T) {
	l := domain.Ledger{
		Steps: []domain.LedgerStep{
			{PointsImpact: 1, ElapsedSeconds: 10, TimeLimit: intp(30)},
			{PointsImpact: 1, ElapsedSeconds: 30, TimeLimit: intp(30)},
			{PointsImpact: 1, ElapsedSeconds: 31, TimeLimit: intp(30)},
			{PointsImpact: 1, ElapsedSeconds: 0},
		},
	}
	p := TimeBonus{BonusPoints: 5}
	if got := p.Score(l); got != 4+10 {
		t.Fatalf("score = %d, want 14", got)
	}
}

func TestTerminalFollowsGraph(t *testing.T) {
	next := "b"
	g := graph.New(domain.Experience{ID: "e"},
		[]domain.Scenario{
			{ID: "a", Type: domain.ScenarioDecision},
			{ID: "b", Type: domain.ScenarioDecision, Terminal: true, ParentID: &next},
		},
		[]domain.Choice{{ID: "ab", ScenarioID: "a", NextScenarioID: &next}})
	for _, p := range []Policy{Default{}, TimeBonus{}} {
		if p.Terminal(g, "a") {
			t.Fatalf("%s: a is not terminal", p.Name())
		}
		if !p.Terminal(g, "b") {
			t.Fatalf("%s: b is tagged terminal", p.Name())
		}
	}
}

func TestRegistryLookup(t *testing.T) {
	r := Builtin(5)
	p, err := r.Lookup("")
	if err != nil || p.Name() != PolicyDefault {
		t.Fatalf("empty name should resolve default, got %v %v", p, err)
	}
	p, err = r.Lookup(PolicyTimeBonus)
	if err != nil {
		t.Fatalf("lookup time_bonus: %v", err)
	}
	if tb, ok := p.(TimeBonus); !ok || tb.BonusPoints != 5 {
		t.Fatalf("unexpected policy %#v", p)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if names := r.Names(); len(names) != 2 || names[0] != PolicyDefault {
		t.Fatalf("names = %v", names)
	}
}

// Package content serves the scenario graphs travellers walk through.
//
// Published content is frozen, so its graphs are built once and shared
// read-only across every ledger. Draft graphs are rebuilt on every call.
package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"lifeswap/internal/domain"
	"lifeswap/internal/graph"
	"lifeswap/internal/repo"
)

type Store struct {
	Repo  repo.Repo
	cache *lru.Cache[string, *graph.Graph]
}

func NewStore(r repo.Repo, size int) (*Store, error) {
	if size <= 0 {
		size = 1
	}
	cache, err := lru.New[string, *graph.Graph](size)
	if err != nil {
		return nil, fmt.Errorf("graph cache: %w", err)
	}
	return &Store{Repo: r, cache: cache}, nil
}

// Graph loads the full graph of an experience, draft or published.
func (s *Store) Graph(ctx context.Context, experienceID string) (*graph.Graph, error) {
	if g, ok := s.cache.Get(experienceID); ok {
		return g, nil
	}
	g, err := s.load(ctx, nil, experienceID)
	if err != nil {
		return nil, err
	}
	if g.Experience.Published() {
		s.cache.Add(experienceID, g)
	}
	return g, nil
}

// GraphTx reads through tx and bypasses the cache; used while authoring.
func (s *Store) GraphTx(ctx context.Context, tx *sql.Tx, experienceID string) (*graph.Graph, error) {
	return s.load(ctx, tx, experienceID)
}

func (s *Store) load(ctx context.Context, tx *sql.Tx, experienceID string) (*graph.Graph, error) {
	exp, err := s.Repo.GetExperience(ctx, tx, experienceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("experience %s: %w", experienceID, domain.ErrNotFound)
		}
		return nil, err
	}
	scenarios, err := s.Repo.ListScenarios(ctx, tx, experienceID)
	if err != nil {
		return nil, err
	}
	choices, err := s.Repo.ListExperienceChoices(ctx, tx, experienceID)
	if err != nil {
		return nil, err
	}
	return graph.New(exp, scenarios, choices), nil
}

// Published returns the graph of a published experience or ErrNotPublished.
func (s *Store) Published(ctx context.Context, experienceID string) (*graph.Graph, error) {
	g, err := s.Graph(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if !g.Experience.Published() {
		return nil, fmt.Errorf("experience %s: %w", experienceID, domain.ErrNotPublished)
	}
	return g, nil
}

func (s *Store) EntryScenario(ctx context.Context, experienceID string) (domain.Scenario, error) {
	g, err := s.Graph(ctx, experienceID)
	if err != nil {
		return domain.Scenario{}, err
	}
	return g.Entry()
}

func (s *Store) Scenario(ctx context.Context, experienceID, scenarioID string) (domain.Scenario, error) {
	g, err := s.Graph(ctx, experienceID)
	if err != nil {
		return domain.Scenario{}, err
	}
	return g.Scenario(scenarioID)
}

// Choices returns the outgoing choices of a scenario in declared order.
func (s *Store) Choices(ctx context.Context, experienceID, scenarioID string) ([]domain.Choice, error) {
	g, err := s.Graph(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if _, err := g.Scenario(scenarioID); err != nil {
		return nil, err
	}
	return g.Choices(scenarioID), nil
}

func (s *Store) ScenarioCount(ctx context.Context, experienceID string) (int, error) {
	g, err := s.Graph(ctx, experienceID)
	if err != nil {
		return 0, err
	}
	return g.Count(), nil
}

// Cached reports how many published graphs are held in memory.
func (s *Store) Cached() int { return s.cache.Len() }

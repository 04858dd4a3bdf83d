package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"lifeswap/internal/authoring"
	"lifeswap/internal/domain"
	"lifeswap/internal/events"
	"lifeswap/internal/graph"
	"lifeswap/internal/repo"
)

type ImportResult struct {
	Experience domain.Experience `json:"experience"`
	Scenarios  int               `json:"scenarios"`
	Choices    int               `json:"choices"`
	// Issues previews what publishing would reject.
	Issues []domain.Issue `json:"issues"`
}

// ImportExperience stores a document as a draft, replacing any earlier draft of
// the same experience. Published experiences are frozen.
func (e Engine) ImportExperience(ctx context.Context, data []byte, actorID string) (ImportResult, error) {
	b, err := authoring.Parse(data)
	if err != nil {
		return ImportResult{}, err
	}
	exp := b.Experience
	policy, err := e.policy(exp.ScoringPolicy)
	if err != nil {
		return ImportResult{}, err
	}
	exp.ScoringPolicy = policy.Name()

	unlock := e.lock("experience:" + exp.ID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ImportResult{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	exp.CreatedAt, exp.UpdatedAt = now, now
	prev, err := e.Repo.GetExperience(ctx, tx, exp.ID)
	switch {
	case err == nil:
		if prev.Published() {
			return ImportResult{}, fmt.Errorf("experience %s: %w", exp.ID, domain.ErrPublished)
		}
		exp.CreatedAt = prev.CreatedAt
	case !errors.Is(err, repo.ErrNotFound):
		return ImportResult{}, err
	}

	ids := make([]string, 0, len(b.Scenarios))
	for _, s := range b.Scenarios {
		ids = append(ids, s.ID)
	}
	owners, err := e.Repo.ScenarioOwners(ctx, tx, ids)
	if err != nil {
		return ImportResult{}, err
	}
	var taken []string
	for id, owner := range owners {
		if owner != exp.ID {
			taken = append(taken, id+" ("+owner+")")
		}
	}
	if len(taken) > 0 {
		sort.Strings(taken)
		return ImportResult{}, fmt.Errorf("scenario ids already used by other experiences: %s: %w", strings.Join(taken, ", "), domain.ErrInvalidInput)
	}

	if err := e.Repo.ReplaceExperience(ctx, tx, exp, b.Scenarios, b.Choices); err != nil {
		return ImportResult{}, err
	}
	issues := graph.Inspect(graph.New(exp, b.Scenarios, b.Choices))
	if err := e.events().Append(ctx, tx, events.ExperienceImported, exp.ID, "experience", exp.ID, actorID, events.EventPayload{
		"scenarios": len(b.Scenarios),
		"choices":   len(b.Choices),
		"issues":    len(issues),
	}); err != nil {
		return ImportResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ImportResult{}, err
	}
	saved, err := e.Repo.GetExperience(ctx, nil, exp.ID)
	if err != nil {
		return ImportResult{}, err
	}
	if issues == nil {
		issues = []domain.Issue{}
	}
	e.log().Info("experience imported", "experience_id", exp.ID, "scenarios", len(b.Scenarios), "issues", len(issues))
	return ImportResult{Experience: saved, Scenarios: len(b.Scenarios), Choices: len(b.Choices), Issues: issues}, nil
}

// ValidateExperience runs the structural checks without changing anything.
func (e Engine) ValidateExperience(ctx context.Context, experienceID string) error {
	g, err := e.Content.Graph(ctx, experienceID)
	if err != nil {
		return err
	}
	return e.validate(g)
}

func (e Engine) validate(g *graph.Graph) error {
	err := graph.Validate(g)
	if _, perr := e.policy(g.Experience.ScoringPolicy); perr != nil {
		var se *domain.StructuralError
		if !errors.As(err, &se) {
			se = &domain.StructuralError{ExperienceID: g.Experience.ID}
		}
		se.Issues = append(se.Issues, domain.Issue{Code: "unknown_policy", Message: perr.Error()})
		return se
	}
	return err
}

// PublishExperience validates and freezes an experience. Publishing twice is a no-op.
// A rejected publish still records the validation failure.
func (e Engine) PublishExperience(ctx context.Context, experienceID, actorID string) (domain.Experience, error) {
	unlock := e.lock("experience:" + experienceID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Experience{}, err
	}
	defer tx.Rollback()

	g, err := e.Content.GraphTx(ctx, tx, experienceID)
	if err != nil {
		return domain.Experience{}, err
	}
	if g.Experience.Published() {
		return g.Experience, nil
	}
	if verr := e.validate(g); verr != nil {
		var se *domain.StructuralError
		payload := events.EventPayload{"error": verr.Error()}
		if errors.As(verr, &se) {
			payload["issues"] = se.Issues
		}
		if err := e.events().Append(ctx, tx, events.ExperienceValidationFailed, experienceID, "experience", experienceID, actorID, payload); err != nil {
			return domain.Experience{}, err
		}
		if err := tx.Commit(); err != nil {
			return domain.Experience{}, err
		}
		e.log().Warn("publish rejected", "experience_id", experienceID, "error", verr)
		return domain.Experience{}, verr
	}
	now := e.stamp()
	if err := e.Repo.PublishExperience(ctx, tx, experienceID, now); err != nil {
		return domain.Experience{}, err
	}
	if err := e.events().Append(ctx, tx, events.ExperiencePublished, experienceID, "experience", experienceID, actorID, events.EventPayload{
		"scenarios": g.Count(),
	}); err != nil {
		return domain.Experience{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Experience{}, err
	}
	e.log().Info("experience published", "experience_id", experienceID, "scenarios", g.Count(), "graphs_cached", e.Content.Cached())
	return e.Repo.GetExperience(ctx, nil, experienceID)
}

type CatalogFilters struct {
	Category   string
	Region     string
	Difficulty string
	Featured   *bool
	Limit      int
	Offset     int
}

// ListExperiences lists the published catalog.
func (e Engine) ListExperiences(ctx context.Context, f CatalogFilters) ([]domain.Experience, error) {
	return e.Repo.ListExperiences(ctx, repo.ExperienceFilters{
		Status:     domain.ExperiencePublished,
		Category:   f.Category,
		Region:     f.Region,
		Difficulty: f.Difficulty,
		Featured:   f.Featured,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
}

// ListAllExperiences includes drafts; authoring views only.
func (e Engine) ListAllExperiences(ctx context.Context) ([]domain.Experience, error) {
	return e.Repo.ListExperiences(ctx, repo.ExperienceFilters{})
}

func (e Engine) Categories(ctx context.Context) ([]string, error) {
	return e.Repo.DistinctValues(ctx, "category")
}

func (e Engine) Regions(ctx context.Context) ([]string, error) {
	return e.Repo.DistinctValues(ctx, "region")
}

// GetExperience returns an experience. Drafts are reported as not found unless
// includeDrafts is set.
func (e Engine) GetExperience(ctx context.Context, experienceID string, includeDrafts bool) (domain.Experience, error) {
	exp, err := e.Repo.GetExperience(ctx, nil, experienceID)
	if err != nil {
		return exp, fmt.Errorf("experience %s: %w", experienceID, err)
	}
	if !exp.Published() && !includeDrafts {
		return domain.Experience{}, fmt.Errorf("experience %s: %w", experienceID, domain.ErrNotFound)
	}
	return exp, nil
}

type ScenarioView struct {
	Scenario domain.Scenario `json:"scenario"`
	Choices  []domain.Choice `json:"choices"`
}

// GetScenario returns a published scenario with every declared choice.
func (e Engine) GetScenario(ctx context.Context, scenarioID string) (ScenarioView, error) {
	s, err := e.Repo.GetScenario(ctx, nil, scenarioID)
	if err != nil {
		return ScenarioView{}, fmt.Errorf("scenario %s: %w", scenarioID, err)
	}
	g, err := e.Content.Graph(ctx, s.ExperienceID)
	if err != nil {
		return ScenarioView{}, err
	}
	if !g.Experience.Published() {
		return ScenarioView{}, fmt.Errorf("scenario %s: %w", scenarioID, domain.ErrNotFound)
	}
	s, err = g.Scenario(scenarioID)
	if err != nil {
		return ScenarioView{}, err
	}
	return ScenarioView{Scenario: s, Choices: g.Choices(scenarioID)}, nil
}

// ListScenarios returns the scenarios of a published experience in declared order.
func (e Engine) ListScenarios(ctx context.Context, experienceID string) ([]domain.Scenario, error) {
	g, err := e.Content.Graph(ctx, experienceID)
	if err != nil {
		return nil, err
	}
	if !g.Experience.Published() {
		return nil, fmt.Errorf("experience %s: %w", experienceID, domain.ErrNotFound)
	}
	return g.Scenarios(), nil
}

// LatestEvents exposes the audit log, newest first.
func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}

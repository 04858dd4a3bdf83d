package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lifeswap/internal/domain"
	"lifeswap/internal/events"
	"lifeswap/internal/graph"
	"lifeswap/internal/ledger"
	"lifeswap/internal/repo"
)

// Start opens a ledger positioned at the entry scenario. A second call while the
// ledger is still open returns the same ledger.
func (e Engine) Start(ctx context.Context, userID, experienceID string) (domain.Ledger, error) {
	if userID == "" {
		return domain.Ledger{}, fmt.Errorf("user is required: %w", domain.ErrInvalidInput)
	}
	g, err := e.Content.Published(ctx, experienceID)
	if err != nil {
		return domain.Ledger{}, err
	}
	entry, err := g.Entry()
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("experience %s: %w", experienceID, err)
	}
	policy, err := e.policy(g.Experience.ScoringPolicy)
	if err != nil {
		return domain.Ledger{}, err
	}

	unlock := e.lock("start:" + userID + ":" + experienceID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ledger{}, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.OpenLedger(ctx, tx, userID, experienceID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Ledger{}, err
	}

	now := e.stamp()
	entryID := entry.ID
	l := domain.Ledger{
		ID:                uuid.NewString(),
		UserID:            userID,
		ExperienceID:      experienceID,
		CurrentScenarioID: &entryID,
		Outcome:           domain.OutcomeInProgress,
		EntryPoints:       entry.PointsAwarded,
		TotalScenarios:    g.Count(),
		MaxSteps:          e.maxSteps(g.Experience),
		Policy:            policy.Name(),
		Steps:             []domain.LedgerStep{},
		StartedAt:         now,
	}
	l = ledger.RecomputeAggregates(l, policy)
	sealed := policy.Terminal(g, entry.ID)
	if sealed {
		l = ledger.RecomputeAggregates(ledger.Seal(l, domain.OutcomeCompleted, now), policy)
	}

	if err := e.Repo.InsertLedger(ctx, tx, l); err != nil {
		if errors.Is(err, repo.ErrOpenLedgerExists) {
			// another process opened it between our read and insert
			tx.Rollback()
			return e.Repo.OpenLedger(ctx, nil, userID, experienceID)
		}
		return domain.Ledger{}, fmt.Errorf("insert ledger: %w", err)
	}
	if err := e.events().Append(ctx, tx, events.LedgerStarted, experienceID, "ledger", l.ID, userID, events.EventPayload{
		"entry_scenario_id": entry.ID,
		"total_scenarios":   l.TotalScenarios,
		"policy":            l.Policy,
	}); err != nil {
		return domain.Ledger{}, err
	}
	if sealed {
		if err := e.sealSideEffects(ctx, tx, l); err != nil {
			return domain.Ledger{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Ledger{}, err
	}
	e.log().Info("ledger started", "ledger_id", l.ID, "user_id", userID, "experience_id", experienceID, "sealed", sealed)
	return l, nil
}

// SubmitChoice applies one choice atomically. On any error the stored ledger is untouched.
func (e Engine) SubmitChoice(ctx context.Context, ledgerID, choiceID string, elapsedSeconds int) (domain.Ledger, error) {
	unlock := e.lock(ledgerID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ledger{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLedger(ctx, tx, ledgerID)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("ledger %s: %w", ledgerID, err)
	}
	if ledger.Sealed(l) {
		return domain.Ledger{}, fmt.Errorf("ledger %s: %w", ledgerID, domain.ErrAlreadyCompleted)
	}
	if elapsedSeconds < 0 {
		return domain.Ledger{}, fmt.Errorf("elapsed seconds must not be negative: %w", domain.ErrInvalidInput)
	}
	if l.CurrentScenarioID == nil {
		return domain.Ledger{}, e.invalidState(ledgerID, "open ledger has no position")
	}
	g, err := e.Content.Graph(ctx, l.ExperienceID)
	if err != nil {
		return domain.Ledger{}, err
	}
	from, err := g.Scenario(*l.CurrentScenarioID)
	if err != nil {
		return domain.Ledger{}, e.invalidState(ledgerID, "position "+*l.CurrentScenarioID+" not in graph")
	}
	if !g.IsAvailable(from.ID, choiceID, l.PointsEarned, l.Visited()) {
		return domain.Ledger{}, fmt.Errorf("choice %s from scenario %s: %w", choiceID, from.ID, domain.ErrChoiceNotAvailable)
	}
	if len(l.Steps)+1 > l.MaxSteps {
		return domain.Ledger{}, fmt.Errorf("ledger %s reached %d steps: %w", ledgerID, l.MaxSteps, domain.ErrStepLimitExceeded)
	}
	policy, err := e.policy(l.Policy)
	if err != nil {
		return domain.Ledger{}, err
	}
	choice, err := g.Choice(choiceID)
	if err != nil {
		return domain.Ledger{}, err
	}

	now := e.stamp()
	step := domain.LedgerStep{
		ChoiceID:       choice.ID,
		FromScenarioID: from.ID,
		ToScenarioID:   choice.NextScenarioID,
		PointsImpact:   choice.PointsImpact,
		ElapsedSeconds: elapsedSeconds,
		TimeLimit:      from.TimeLimit,
		CreatedAt:      now,
	}
	if choice.NextScenarioID != nil {
		to, err := g.Scenario(*choice.NextScenarioID)
		if err != nil {
			return domain.Ledger{}, e.invalidState(ledgerID, "choice "+choice.ID+" leads outside the graph")
		}
		step.ArrivalPoints = to.PointsAwarded
	}

	next := ledger.RecomputeAggregates(ledger.Append(l, step), policy)
	sealed := choice.NextScenarioID == nil || policy.Terminal(g, *choice.NextScenarioID)
	if sealed {
		next = ledger.RecomputeAggregates(ledger.Seal(next, domain.OutcomeCompleted, now), policy)
	}
	stored := next.Steps[len(next.Steps)-1]

	if err := e.Repo.InsertStep(ctx, tx, stored); err != nil {
		return domain.Ledger{}, fmt.Errorf("insert step: %w", err)
	}
	if err := e.Repo.UpdateLedger(ctx, tx, next, l.StepCount); err != nil {
		return domain.Ledger{}, err
	}
	if err := e.events().Append(ctx, tx, events.LedgerChoiceSubmitted, l.ExperienceID, "ledger", l.ID, l.UserID, events.EventPayload{
		"seq":                   stored.Seq,
		"choice_id":             choice.ID,
		"from_scenario_id":      from.ID,
		"to_scenario_id":        choice.NextScenarioID,
		"points_earned":         next.PointsEarned,
		"completion_percentage": next.CompletionPercentage,
	}); err != nil {
		return domain.Ledger{}, err
	}
	if sealed {
		if err := e.sealSideEffects(ctx, tx, next); err != nil {
			return domain.Ledger{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Ledger{}, err
	}
	e.log().Debug("choice submitted", "ledger_id", l.ID, "choice_id", choice.ID, "seq", stored.Seq, "sealed", sealed)
	return next, nil
}

// ListAvailableChoices returns the choices the traveller may take now. Choices
// whose target condition is unmet are hidden. Sealed ledgers have none.
func (e Engine) ListAvailableChoices(ctx context.Context, ledgerID string) ([]domain.Choice, error) {
	l, g, err := e.loadPosition(ctx, ledgerID)
	if err != nil {
		return nil, err
	}
	if ledger.Sealed(l) {
		return []domain.Choice{}, nil
	}
	return g.Available(*l.CurrentScenarioID, l.PointsEarned, l.Visited()), nil
}

// GetCurrentScenario resolves the ledger position. Sealed ledgers report the
// scenario they ended on.
func (e Engine) GetCurrentScenario(ctx context.Context, ledgerID string) (domain.Scenario, error) {
	l, g, err := e.loadPosition(ctx, ledgerID)
	if err != nil {
		return domain.Scenario{}, err
	}
	s, err := g.Scenario(*l.CurrentScenarioID)
	if err != nil {
		return domain.Scenario{}, e.invalidState(ledgerID, "position "+*l.CurrentScenarioID+" not in graph")
	}
	return s, nil
}

func (e Engine) loadPosition(ctx context.Context, ledgerID string) (domain.Ledger, *graph.Graph, error) {
	l, err := e.Repo.GetLedger(ctx, nil, ledgerID)
	if err != nil {
		return l, nil, fmt.Errorf("ledger %s: %w", ledgerID, err)
	}
	if l.CurrentScenarioID == nil {
		return l, nil, e.invalidState(ledgerID, "ledger has no position")
	}
	g, err := e.Content.Graph(ctx, l.ExperienceID)
	if err != nil {
		return l, nil, err
	}
	return l, g, nil
}

// Complete seals a ledger on request. On a terminal scenario this is a natural
// completion; anywhere else it is recorded as an early exit.
func (e Engine) Complete(ctx context.Context, ledgerID string) (domain.Ledger, error) {
	unlock := e.lock(ledgerID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ledger{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLedger(ctx, tx, ledgerID)
	if err != nil {
		return domain.Ledger{}, fmt.Errorf("ledger %s: %w", ledgerID, err)
	}
	if ledger.Sealed(l) {
		return domain.Ledger{}, fmt.Errorf("ledger %s: %w", ledgerID, domain.ErrAlreadyCompleted)
	}
	if l.CurrentScenarioID == nil {
		return domain.Ledger{}, e.invalidState(ledgerID, "open ledger has no position")
	}
	g, err := e.Content.Graph(ctx, l.ExperienceID)
	if err != nil {
		return domain.Ledger{}, err
	}
	policy, err := e.policy(l.Policy)
	if err != nil {
		return domain.Ledger{}, err
	}
	outcome := domain.OutcomeExited
	if policy.Terminal(g, *l.CurrentScenarioID) {
		outcome = domain.OutcomeCompleted
	}
	next := ledger.RecomputeAggregates(ledger.Seal(l, outcome, e.stamp()), policy)
	if err := e.Repo.UpdateLedger(ctx, tx, next, l.StepCount); err != nil {
		return domain.Ledger{}, err
	}
	if err := e.sealSideEffects(ctx, tx, next); err != nil {
		return domain.Ledger{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ledger{}, err
	}
	e.log().Info("ledger sealed on request", "ledger_id", l.ID, "outcome", outcome)
	return next, nil
}

// sealSideEffects records the sealing event and credits the user's totals.
func (e Engine) sealSideEffects(ctx context.Context, tx *sql.Tx, l domain.Ledger) error {
	evt := events.LedgerCompleted
	if l.Outcome == domain.OutcomeExited {
		evt = events.LedgerExited
	}
	if err := e.events().Append(ctx, tx, evt, l.ExperienceID, "ledger", l.ID, l.UserID, events.EventPayload{
		"outcome":               l.Outcome,
		"points_earned":         l.PointsEarned,
		"time_spent":            l.TimeSpent,
		"completion_percentage": l.CompletionPercentage,
		"steps":                 len(l.Steps),
	}); err != nil {
		return err
	}
	completedAt := e.stamp()
	if l.CompletedAt != nil {
		completedAt = *l.CompletedAt
	}
	if err := e.Repo.BumpUserStats(ctx, tx, l.UserID, l.PointsEarned, l.Outcome, completedAt); err != nil {
		return fmt.Errorf("user stats: %w", err)
	}
	return nil
}

func (e Engine) GetLedger(ctx context.Context, ledgerID string) (domain.Ledger, error) {
	l, err := e.Repo.GetLedger(ctx, nil, ledgerID)
	if err != nil {
		return l, fmt.Errorf("ledger %s: %w", ledgerID, err)
	}
	return l, nil
}

// ListLedgers returns the user's journeys newest first; pass completed to filter.
func (e Engine) ListLedgers(ctx context.Context, userID string, completed *bool, limit int) ([]domain.Ledger, error) {
	return e.Repo.ListLedgers(ctx, repo.LedgerFilters{UserID: userID, Completed: completed, Limit: limit})
}

func (e Engine) UserStats(ctx context.Context, userID string) (domain.UserStats, error) {
	return e.Repo.GetUserStats(ctx, userID)
}
